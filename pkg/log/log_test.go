package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogFileReportsCaller(t *testing.T) {
	file := filepath.Join(t.TempDir(), "wayfare.log")
	InitLog("file", file, "info", 1, true)
	defer InitLog("console", "", "info", 0, true)

	Info("staged %v", "draft-1")
	Debug("not written at info level")
	getLogger().Flush()

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, "staged draft-1")
	// the file of the call site, not of the wrapper or the test runner
	assert.Contains(t, out, "[log_test.go:")
	assert.NotContains(t, out, "not written")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, ParseLevel("info"), ParseLevel("unknown"))
	assert.Equal(t, ParseLevel("trace"), ParseLevel("DEBUG"))
	assert.Less(t, ParseLevel("error"), ParseLevel("warn"))
}
