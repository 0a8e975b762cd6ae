package viz

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/automerge/automerge-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countLabel(doc *automerge.Doc) (string, error) {
	n, err := doc.Path("count").Counter().Get()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("count=%d", n), nil
}

func newDoc(t *testing.T) *automerge.Doc {
	t.Helper()
	doc := automerge.New()
	require.NoError(t, doc.Path("count").Set(automerge.NewCounter(0)))
	_, err := doc.Commit("init", automerge.CommitOptions{AllowEmpty: true})
	require.NoError(t, err)

	fork, err := doc.Fork()
	require.NoError(t, err)
	require.NoError(t, doc.Path("count").Counter().Inc(1))
	_, err = doc.Commit("left", automerge.CommitOptions{AllowEmpty: true})
	require.NoError(t, err)
	require.NoError(t, fork.Path("count").Counter().Inc(2))
	_, err = fork.Commit("right", automerge.CommitOptions{AllowEmpty: true})
	require.NoError(t, err)
	_, err = doc.Merge(fork)
	require.NoError(t, err)
	return doc
}

func TestWriteDot(t *testing.T) {
	doc := newDoc(t)
	var buff bytes.Buffer
	require.NoError(t, WriteDot(doc, countLabel, &buff))

	out := buff.String()
	assert.True(t, strings.HasPrefix(out, "digraph \"log\" {\n"))
	assert.Contains(t, out, "count=0")
	assert.Contains(t, out, "count=1")
	assert.Contains(t, out, "count=2")
	assert.Equal(t, 2, strings.Count(out, "->"), "both branches depend on init")
}

func TestWriteDot_LabelError(t *testing.T) {
	doc := newDoc(t)
	err := WriteDot(doc, func(*automerge.Doc) (string, error) { return "", fmt.Errorf("boom") }, &bytes.Buffer{})
	assert.ErrorContains(t, err, "boom")
}

func TestRenderDocToSvg(t *testing.T) {
	doc := newDoc(t)
	out := filepath.Join(t.TempDir(), "history.svg")
	require.NoError(t, RenderDocToSvg(doc, countLabel, out))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<svg")
}
