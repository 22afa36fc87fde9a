package postgresql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected string
	}{
		{
			name: "full config",
			config: Config{
				Host:     "localhost",
				Port:     5432,
				User:     "postgres",
				Password: "secret",
				Database: "podcast_db",
				SSLMode:  "require",
			},
			expected: "host=localhost port=5432 dbname=podcast_db sslmode=require user=postgres password=secret",
		},
		{
			name:     "sslmode defaults to disable",
			config:   Config{Host: "db", Port: 5433, Database: "podcast_db"},
			expected: "host=db port=5433 dbname=podcast_db sslmode=disable",
		},
		{
			name:     "password with spaces and quotes is quoted",
			config:   Config{Host: "db", Port: 5432, Database: "p", SSLMode: "disable", Password: `it's a pass`},
			expected: `host=db port=5432 dbname=p sslmode=disable password='it\'s a pass'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}
