package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))

	long := strings.Repeat("ğ", previewLength+10)
	p := Preview(long)
	assert.True(t, strings.HasSuffix(p, "…"))
	assert.Equal(t, previewLength+1, len([]rune(p)))
}

func TestRenderMessageNotification_EscapesContent(t *testing.T) {
	out := renderMessageNotification("<b>Eve</b>", "1 < 2", "https://app/messages/c1")
	assert.Contains(t, out, "&lt;b&gt;Eve&lt;/b&gt;")
	assert.Contains(t, out, "1 &lt; 2")
	assert.Contains(t, out, `href="https://app/messages/c1"`)
}
