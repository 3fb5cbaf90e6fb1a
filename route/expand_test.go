package route

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandEnvStrict_MissingVarErrors(t *testing.T) {
	t.Setenv("PRESENT", "ok")

	_, err := ExpandEnvStrict("a=${PRESENT} b=${MISSING} c=${ALSO_MISSING} d=${MISSING}")
	require.ErrorIs(t, err, ErrMissingEnv)
	require.Contains(t, err.Error(), "ALSO_MISSING, MISSING")
}

func TestExpandEnvStrict_DollarEscape(t *testing.T) {
	t.Setenv("X", "y")

	out, err := ExpandEnvStrict("$$${X}")
	require.NoError(t, err)
	require.Equal(t, "$y", out)
}

func TestExpandEnvStrict_LeavesBareDollars(t *testing.T) {
	t.Setenv("HOME_PATH", "/paciente")

	out, err := ExpandEnvStrict(`^${HOME_PATH}/\d+$ and $HOME`)
	require.NoError(t, err)
	require.Equal(t, `^/paciente/\d+$ and $HOME`, out)
}

func TestExpandEnvStrict_EmptyValue(t *testing.T) {
	t.Setenv("EMPTY", "")

	out, err := ExpandEnvStrict("[${EMPTY}]")
	require.NoError(t, err)
	require.Equal(t, "[]", out)
}
