package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envAdminPassword = "HIPOT_ADMIN_PASSWORD"
	envAPIToken      = "HIPOT_API_TOKEN"
)

// loadEnvFile sources a .env file sitting next to the config file and one in
// the working directory. Variables already set in the environment win.
func loadEnvFile(configPath string) {
	candidates := []string{".env"}
	if dir := strings.TrimSpace(filepath.Dir(configPath)); dir != "" && dir != "." {
		candidates = append([]string{filepath.Join(dir, ".env")}, candidates...)
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err != nil || info.IsDir() {
			continue
		}
		_ = godotenv.Load(candidate)
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
