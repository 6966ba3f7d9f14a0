package httpenv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetParamIfModifiedSince(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantZero  bool
		wantYear  int
	}{
		{
			name:     "RFC1123 date parses",
			value:    "Sun, 06 Nov 1994 08:49:37 GMT",
			wantYear: 1994,
		},
		{
			name:     "garbage value leaves IfModifiedSince zero",
			value:    "not-a-date",
			wantZero: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NewEnvironment()
			env.SetParam([]byte("HTTP_IF_MODIFIED_SINCE"), []byte(tt.value))

			if tt.wantZero {
				require.True(t, env.IfModifiedSince.IsZero())
				return
			}
			require.False(t, env.IfModifiedSince.IsZero())
			require.Equal(t, tt.wantYear, env.IfModifiedSince.Year())
			require.Equal(t, time.UTC, env.IfModifiedSince.Location())
		})
	}
}

func TestSetParamEtagPassesThroughVerbatim(t *testing.T) {
	env := NewEnvironment()
	env.SetParam([]byte("HTTP_IF_NONE_MATCH"), []byte(`"abc123"`))
	require.Equal(t, `"abc123"`, env.Etag)
}

func TestAppendPostDataAccumulatesAcrossCalls(t *testing.T) {
	env := NewEnvironment()
	env.AppendPostData([]byte("foo"))
	env.AppendPostData([]byte("bar"))
	require.Equal(t, []byte("foobar"), env.PostBuffer())
}
