package cas

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/pkg/bufpool"
	"github.com/marmos91/dittoca/pkg/gdd"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback uint32
		want     uint32
	}{
		{"Nil", nil, ca.ECAGetFail, ca.ECANormal},
		{"StatusError", NewStatusError(ca.ECADisconn, errors.New("gone")), ca.ECAGetFail, ca.ECADisconn},
		{"WrappedStatusError", fmt.Errorf("read: %w", NewStatusError(ca.ECATimeout, nil)), ca.ECAGetFail, ca.ECATimeout},
		{"NoConvert", gdd.ErrNoConvert, ca.ECAGetFail, ca.ECANoConvert},
		{"EnumRange", fmt.Errorf("x: %w", gdd.ErrEnumIndexRange), ca.ECAPutFail, ca.ECANoConvert},
		{"BadCount", ca.ErrBadCount, ca.ECAGetFail, ca.ECABadCount},
		{"BadDBRType", ca.ErrBadDBRType, ca.ECAGetFail, ca.ECABadType},
		{"TooLarge", bufpool.ErrTooLarge, ca.ECAGetFail, ca.ECATooLarge},
		{"NoReadAccess", ErrNoAccess, ca.ECAGetFail, ca.ECANoRdAccess},
		{"NoWriteAccess", ErrNoAccess, ca.ECAPutFail, ca.ECANoWtAccess},
		{"NotFound", ErrNotFound, ca.ECAGetFail, ca.ECAUknChan},
		{"Other", errors.New("boom"), ca.ECAPutFail, ca.ECAPutFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ca.ECAName(tt.want), ca.ECAName(MapError(tt.err, tt.fallback)))
		})
	}
}

func TestServerMapError(t *testing.T) {
	s := &Server{}
	assert.Nil(t, s.MapError(nil))

	pe := s.MapError(errors.New("boom"))
	assert.Equal(t, ca.ECAInternal, pe.Code())

	se := NewStatusError(ca.ECANoWtAccess, nil)
	assert.Same(t, se, s.MapError(fmt.Errorf("write: %w", se)))
}
