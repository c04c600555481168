package apperr

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "validation", err: Validation("unknown timeframe %q", "2m"), want: KindValidation},
		{name: "upstream", err: Upstream(io.EOF, "fetch series"), want: KindUpstream},
		{name: "parse", err: Parse(io.ErrUnexpectedEOF, "decode"), want: KindParse},
		{name: "wrapped", err: fmt.Errorf("history: %w", Validation("bad")), want: KindValidation},
		{name: "plain error", err: io.EOF, want: KindInternal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
			assert.True(t, Is(tc.err, tc.want) || tc.want == KindInternal)
		})
	}
}

func TestError_MessageAndCause(t *testing.T) {
	err := Upstream(io.EOF, "fetch %s", "CME_MINI:MNQ1!")

	assert.Equal(t, "fetch CME_MINI:MNQ1!: EOF", err.Error())
	assert.ErrorIs(t, err, io.EOF)

	var e *Error
	assert.ErrorAs(t, err, &e)
	assert.NotNil(t, e.StackTrace())
}

func TestError_NoCause(t *testing.T) {
	err := Validation("bars must be between %d and %d", 1, 20000)

	assert.Equal(t, "bars must be between 1 and 20000", err.Error())
	var e *Error
	assert.ErrorAs(t, err, &e)
	assert.Nil(t, e.StackTrace())
}
