// Package env loads process configuration from a .env file before the
// typed getters in internal/config read it.
package env

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EnvDotEnvPath names an explicit .env file. When set, no directory walk
// happens and a missing file is an error.
const EnvDotEnvPath = "DEP_DOTENV"

const dotEnvName = ".env"

var (
	loadOnce   sync.Once
	loadedPath string
	loadErr    error
)

// Ensure loads $DEP_DOTENV, or else the nearest .env found walking up from
// the working directory. Variables already exported win over file values.
// Only the first call does any work.
func Ensure() error {
	if underGoTest() && os.Getenv("GOTEST_LOAD_DOTENV") != "1" {
		return nil
	}
	loadOnce.Do(func() {
		path, err := resolveDotEnv(os.Getenv(EnvDotEnvPath))
		if err != nil {
			loadErr = err
			log.Debug().Err(err).Msg("depsync: resolve .env failed")
			return
		}
		if path == "" {
			return
		}
		if err := godotenv.Load(path); err != nil {
			loadErr = errors.Wrapf(err, "load %s", path)
			log.Warn().Err(err).Str("dotenv", path).Msg("depsync: load .env failed")
			return
		}
		loadedPath = path
		log.Debug().Str("dotenv", path).Msg("depsync: loaded .env")
	})
	return loadErr
}

// LoadedPath returns the .env path that was loaded, or "".
func LoadedPath() string {
	return loadedPath
}

func resolveDotEnv(explicit string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		info, err := os.Stat(explicit)
		if err != nil {
			return "", errors.Wrapf(err, "%s=%s", EnvDotEnvPath, explicit)
		}
		if info.IsDir() {
			return "", errors.Errorf("%s=%s is a directory", EnvDotEnvPath, explicit)
		}
		return explicit, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "get working directory")
	}
	return walkUp(wd)
}

// walkUp returns the first regular .env file in dir or one of its parents.
func walkUp(dir string) (string, error) {
	for {
		candidate := filepath.Join(dir, dotEnvName)
		info, err := os.Stat(candidate)
		switch {
		case err == nil && !info.IsDir():
			return candidate, nil
		case err != nil && !os.IsNotExist(err):
			return "", errors.Wrapf(err, "stat %s", candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func underGoTest() bool {
	if strings.HasSuffix(os.Args[0], ".test") {
		return true
	}
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}
