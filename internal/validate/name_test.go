package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProjectName(t *testing.T) {
	t.Run("accepts", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
		}{
			{"simple", "myapp"},
			{"with underscore", "my_app"},
			{"with digits", "app2"},
			{"digits only", "2024"},
			{"underscore only", "_"},
			{"mixed case", "MyApp"},
			{"chinese", "应用配置"},
			{"chinese mixed", "订单_service01"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.True(t, ProjectName(tt.input), "ProjectName(%q)", tt.input)
			})
		}
	})

	t.Run("rejects", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
		}{
			{"empty", ""},
			{"space", "my app"},
			{"hyphen", "my-app"},
			{"dot", "my.app"},
			{"slash", "a/b"},
			{"path escape", "../etc"},
			{"trailing newline", "app\n"},
			{"emoji", "app😀"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.False(t, ProjectName(tt.input), "ProjectName(%q)", tt.input)
			})
		}
	})
}

func TestEntryKey_SameCharacterSet(t *testing.T) {
	assert.True(t, EntryKey("DATABASE_URL"))
	assert.True(t, EntryKey("超时秒数"))
	assert.False(t, EntryKey("db-url"))
	assert.False(t, EntryKey(""))
}
