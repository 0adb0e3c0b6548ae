package buffer

import (
	"bytes"
	"io"
	"testing"

	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/pkg/bufpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool() *bufpool.Pool {
	return bufpool.NewPool(&bufpool.Config{SmallSize: 64, LargeSize: 256})
}

func echo() []byte {
	return ca.AppendMessage(nil, ca.Header{Command: ca.CmdEcho}, nil)
}

func withPayload(n int) []byte {
	return filled('x', n)
}

func filled(c byte, n int) []byte {
	return ca.AppendMessage(nil, ca.Header{Command: ca.CmdWrite, DataType: 0, Count: 1}, bytes.Repeat([]byte{c}, n))
}

func TestInBufSplitsMessages(t *testing.T) {
	in := NewInBuf(testPool())
	defer in.Close()

	stream := append(echo(), withPayload(8)...)
	_, err := in.Write(stream)
	require.NoError(t, err)

	msg, ok, err := in.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint16(ca.CmdEcho), msg.Command)

	msg, ok, err = in.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint16(ca.CmdWrite), msg.Command)
	assert.Len(t, msg.Payload, 8)

	_, ok, err = in.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, in.Len())
	assert.Empty(t, in.Peek())
}

func TestInBufResumesPartialMessage(t *testing.T) {
	in := NewInBuf(testPool())
	defer in.Close()

	full := withPayload(16)
	for i := 0; i < len(full)-1; i++ {
		_, err := in.Write(full[i : i+1])
		require.NoError(t, err)
		_, ok, err := in.Next()
		require.NoError(t, err)
		require.False(t, ok, "message complete after %d bytes", i+1)
	}

	_, err := in.Write(full[len(full)-1:])
	require.NoError(t, err)
	msg, ok, err := in.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bytes.Repeat([]byte{'x'}, 16), msg.Payload)
}

func TestInBufBorrowsLargeBuffer(t *testing.T) {
	pool := testPool()
	in := NewInBuf(pool)
	defer in.Close()

	big := withPayload(200)
	_, err := in.Fill(io.LimitReader(bytes.NewReader(big), 16))
	require.NoError(t, err)
	_, ok, err := in.Next()
	require.NoError(t, err)
	require.False(t, ok)
	assert.EqualValues(t, 0, pool.Stats().LargeOutstanding)

	r := bytes.NewReader(big[16:])
	_, err = in.Fill(r)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pool.Stats().LargeOutstanding)

	for {
		_, ok, err = in.Next()
		require.NoError(t, err)
		if ok {
			break
		}
		_, err = in.Fill(r)
		require.NoError(t, err)
	}

	in.Shrink()
	assert.EqualValues(t, 0, pool.Stats().LargeOutstanding)
}

func TestInBufPayloadsSurvivePartialTail(t *testing.T) {
	pool := testPool()
	in := NewInBuf(pool)
	defer in.Close()

	first := filled('x', 8)
	second := filled('y', 40)
	require.Len(t, second, 56)

	_, err := in.Write(append(append([]byte{}, first...), second[:24]...))
	require.NoError(t, err)

	msg, ok, err := in.Next()
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = in.Next()
	require.NoError(t, err)
	require.False(t, ok)

	assert.Equal(t, []byte("xxxxxxxx"), msg.Payload)
	assert.EqualValues(t, 0, pool.Stats().LargeOutstanding)

	// the batch is done with; the next fill may move the buffer
	_, err = in.Fill(bytes.NewReader(second[24:]))
	require.NoError(t, err)
	msg, ok, err = in.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bytes.Repeat([]byte{'y'}, 40), msg.Payload)
}

func TestInBufRejectsOversizedMessage(t *testing.T) {
	in := NewInBuf(testPool())
	defer in.Close()

	h := ca.Header{Command: ca.CmdWrite, PayloadSize: 4096, Count: 1}
	_, err := in.Write(h.Encode())
	require.NoError(t, err)

	_, _, err = in.Next()
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestOutBufBackpressure(t *testing.T) {
	pool := testPool()
	out := NewOutBuf(pool)
	defer out.Close()

	msg := withPayload(16) // 32 bytes
	require.NoError(t, out.Append(msg))
	require.NoError(t, out.Append(msg))

	assert.Zero(t, out.Free())

	// A full buffer refuses rather than dropping or growing.
	assert.False(t, out.Fits(len(msg)))
	assert.ErrorIs(t, out.Append(msg), ErrFull)
	assert.Equal(t, 64, out.Len())

	b := out.Drain()
	assert.Len(t, b, 64)
	out.Release(b)
	assert.Zero(t, out.Len())

	require.NoError(t, out.Append(msg))
	_, refused := out.Stats()
	assert.EqualValues(t, 1, refused)
}

func TestOutBufLargeMessages(t *testing.T) {
	pool := testPool()
	out := NewOutBuf(pool)
	defer out.Close()

	big := withPayload(150)
	require.NoError(t, out.Append(echo()))
	assert.ErrorIs(t, out.Append(big), ErrFull, "large message waits for an empty buffer")

	out.Release(out.Drain())
	require.NoError(t, out.Append(big))
	assert.EqualValues(t, 1, pool.Stats().LargeOutstanding)

	b := out.Drain()
	assert.Equal(t, big, b)
	out.Release(b)
	assert.EqualValues(t, 0, pool.Stats().LargeOutstanding)

	assert.ErrorIs(t, out.Append(withPayload(400)), ErrTooLarge)
}

func TestOutBufReadySignal(t *testing.T) {
	out := NewOutBuf(testPool())
	require.NoError(t, out.Append(echo()))

	select {
	case <-out.Ready():
	default:
		t.Fatal("expected ready signal")
	}

	out.Close()
	assert.ErrorIs(t, out.Append(echo()), ErrClosed)
	assert.Nil(t, out.Drain())
}
