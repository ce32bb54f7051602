package cfg

import (
	"os"

	"github.com/drone/envsubst"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Source is a generic configuration source. This function may do whatever is
// required to obtain the configuration. It is passed a pointer to the
// destination, which will be something compatible to `yaml.Unmarshal`. The
// obtained configuration may be written to this object, it may also contain
// data from previous sources.
type Source func(interface{}) error

// Unmarshal merges the values of the various configuration sources and sets them on
// `dst`. The object must be compatible with `yaml.Unmarshal`.
func Unmarshal(dst interface{}, sources ...Source) error {
	if len(sources) == 0 {
		panic("No sources supplied to cfg.Unmarshal(). This is most likely a programming issue and should never happen. Check the code!")
	}
	for _, source := range sources {
		if err := source(dst); err != nil {
			return errors.Wrap(err, "sourcing")
		}
	}
	return nil
}

// YAML returns a Source that opens the supplied `.yaml` file and loads it.
// An empty filename is a no-op. With expandEnvVars, ${VAR} references are
// replaced by the matching environment variables before decoding.
func YAML(f string, expandEnvVars bool, strict bool) Source {
	return func(dst interface{}) error {
		if f == "" {
			return nil
		}

		y, err := os.ReadFile(f)
		if err != nil {
			return errors.Wrap(err, "Error reading config file")
		}

		if expandEnvVars {
			s, err := envsubst.EvalEnv(string(y))
			if err != nil {
				return errors.Wrap(err, "Error expanding environment variables in config file")
			}
			y = []byte(s)
		}

		err = dYAML(y, strict)(dst)
		return errors.Wrap(err, f)
	}
}

// dYAML returns a YAML source and allows dependency injection
func dYAML(y []byte, strict bool) Source {
	return func(dst interface{}) error {
		if strict {
			return yaml.UnmarshalStrict(y, dst)
		}
		return yaml.Unmarshal(y, dst)
	}
}

// Validator is implemented by configurations able to check themselves once
// every source was applied.
type Validator interface {
	Validate() error
}

// Validate returns a Source calling Validate on the destination.
func Validate() Source {
	return func(dst interface{}) error {
		if v, ok := dst.(Validator); ok {
			return v.Validate()
		}
		return nil
	}
}
