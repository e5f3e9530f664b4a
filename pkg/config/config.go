// Package config resolves typed configuration structs from the environment.
// A dotenv file (the -env flag, or ./.env when present) is exported into the
// process environment before envconfig reads the prefixed variables.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const defaultEnvFile = ".env"

func New[T any](prefix string) (*T, error) {
	if err := seedEnvironment(); err != nil {
		return nil, err
	}

	conf := new(T)
	if err := envconfig.Process(prefix, conf); err != nil {
		return nil, fmt.Errorf("read %s configuration: %w", prefix, err)
	}
	return conf, nil
}

func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(fmt.Sprintf("config %s: %v", prefix, err))
	}
	return conf
}

// seedEnvironment exports the dotenv file once per New call. An explicitly
// flagged file must exist; the implicit ./.env is optional.
func seedEnvironment() error {
	if path := envFlagValue(); path != "" {
		return exportFile(path)
	}

	info, err := os.Stat(defaultEnvFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return exportFile(defaultEnvFile)
}

var (
	envFlag  string
	flagOnce sync.Once
)

func envFlagValue() string {
	flagOnce.Do(func() {
		if flag.Lookup("env") == nil {
			flag.StringVar(&envFlag, "env", "", "dotenv file exported before reading configuration")
		}
		if !flag.Parsed() {
			flag.Parse()
		}
	})
	return strings.TrimSpace(envFlag)
}

// exportFile copies every key of a dotenv-style file into the process
// environment, uppercasing names the way envconfig expects them.
func exportFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read env file %s: %w", path, err)
	}
	for key, value := range v.AllSettings() {
		if err := os.Setenv(strings.ToUpper(key), fmt.Sprint(value)); err != nil {
			return fmt.Errorf("export %s: %w", key, err)
		}
	}
	return nil
}
