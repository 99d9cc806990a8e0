package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Load reads the configuration. path may name a file explicitly; when it
// is empty, shothammer.toml is searched for in the working directory and
// in $HOME/.config/shothammer, and a missing file is not an error.
// overrides are applied last, keyed by option name ("log.level").
func Load(path string, overrides map[string]any) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("site_url", EnvPrefix+"_SITE_URL", SiteURLEnv)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", FileName))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	projects, err := parseProjects(v.Get("projects"))
	if err != nil {
		return Config{}, err
	}
	cfg.Projects = projects
	cfg.File = v.ConfigFileUsed()

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against its field rules.
func Validate(cfg Config) error {
	if err := getValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("name", "")
	v.SetDefault("key", "")
	v.SetDefault("site_url", "")
	v.SetDefault("projects", "")
	v.SetDefault("tag_namespace", "")
	v.SetDefault("capture_last_event", false)
	v.SetDefault("last_event_file", d.LastEventFile)
	v.SetDefault("capture_dir", d.CaptureDir)
	v.SetDefault("toolkit_root", "")
	v.SetDefault("path_template", d.PathTemplate)
	v.SetDefault("episode_field", d.EpisodeField)
	v.SetDefault("sequence_field", d.SequenceField)
	v.SetDefault("hs_binary", d.HSBinary)
	v.SetDefault("hs_timeout", d.HSTimeout)
	v.SetDefault("journal_path", "")
	v.SetDefault("spool_dir", "")
	v.SetDefault("feed_addr", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", "")
}

// parseProjects accepts a TOML array or a comma separated string, the
// form used by SGHS_PROJECTS. An empty value is the empty allow-list.
func parseProjects(raw any) ([]int64, error) {
	var items []string
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case string:
		items = strings.FieldsFunc(val, func(r rune) bool { return r == ',' || r == ' ' })
	case []any:
		for _, item := range val {
			items = append(items, fmt.Sprint(item))
		}
	case []int:
		for _, item := range val {
			items = append(items, strconv.Itoa(item))
		}
	case []int64:
		return val, nil
	case []string:
		items = val
	default:
		items = []string{fmt.Sprint(val)}
	}

	if len(items) == 0 {
		return nil, nil
	}
	projects := make([]int64, 0, len(items))
	for _, item := range items {
		id, err := strconv.ParseInt(strings.TrimSpace(item), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: projects: %q is not a project id", ErrInvalid, item)
		}
		projects = append(projects, id)
	}
	return projects, nil
}
