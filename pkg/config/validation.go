package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its struct tags and the rules tags cannot
// express.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed '%s' (value: %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
		}
		return err
	}

	if cfg.Server.MaxArrayBytes < cfg.Server.BufferSize {
		return fmt.Errorf("server.max_array_bytes (%s) must not be smaller than server.buffer_size (%s)",
			cfg.Server.MaxArrayBytes, cfg.Server.BufferSize)
	}
	if cfg.API.IsEnabled() && cfg.API.Port == cfg.Server.Port {
		return fmt.Errorf("api.port and server.port are both %d", cfg.Server.Port)
	}
	return nil
}
