package console

import (
	"os"
	"strconv"

	p9 "github.com/keaganluttrell/gconsole/pkg/9p"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	// DefaultInputBuffer matches a keyboard burst.
	DefaultInputBuffer = 32
	// DefaultOutputBuffer holds a few screen lines.
	DefaultOutputBuffer = DefaultInputBuffer * 8

	// MaxData is the largest read or write payload the server accepts.
	MaxData = 8192
)

// Config holds the console server configuration.
type Config struct {
	Listen       string `yaml:"listen"`        // export address for `gconsole serve`
	Blind        bool   `yaml:"blind"`         // no echo of input, no raw mode
	Debug        bool   `yaml:"debug"`         // log every message
	Program      string `yaml:"program"`       // command line run on the console
	InputBuffer  int    `yaml:"input_buffer"`  // bytes buffered from the producer
	OutputBuffer int    `yaml:"output_buffer"` // bytes buffered for the consumer
	MaxHandles   int    `yaml:"max_handles"`   // fids a session may create
	MaxPending   int    `yaml:"max_pending"`   // deferred reads per stream
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Listen:       ":5640",
		InputBuffer:  DefaultInputBuffer,
		OutputBuffer: DefaultOutputBuffer,
		MaxHandles:   1024,
		MaxPending:   256,
	}
}

// LoadConfig reads a YAML file over the defaults, then applies environment
// overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("GCONSOLE_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("GCONSOLE_PROGRAM"); v != "" {
		c.Program = v
	}
	for name, dst := range map[string]*bool{
		"GCONSOLE_BLIND": &c.Blind,
		"GCONSOLE_DEBUG": &c.Debug,
	} {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return errors.Wrapf(err, "%s", name)
			}
			*dst = b
		}
	}
	for name, dst := range map[string]*int{
		"GCONSOLE_INPUT_BUFFER":  &c.InputBuffer,
		"GCONSOLE_OUTPUT_BUFFER": &c.OutputBuffer,
	} {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return errors.Wrapf(err, "%s", name)
			}
			*dst = n
		}
	}
	return nil
}

// Validate rejects sizes the server cannot work with.
func (c Config) Validate() error {
	if c.InputBuffer <= 0 || c.InputBuffer > MaxData {
		return errors.Errorf("input_buffer must be in 1..%d, got %d", MaxData, c.InputBuffer)
	}
	if c.OutputBuffer <= 0 || c.OutputBuffer > MaxData {
		return errors.Errorf("output_buffer must be in 1..%d, got %d", MaxData, c.OutputBuffer)
	}
	if c.MaxHandles < 0 || c.MaxPending < 0 {
		return errors.New("max_handles and max_pending must not be negative")
	}
	return nil
}

// minMsize is the smallest msize a client may negotiate: one full output
// buffer must fit in a single Rread.
func (c Config) minMsize() uint32 {
	return uint32(p9.IOHDRSZ + c.OutputBuffer)
}

// maxMsize caps every negotiation.
func (c Config) maxMsize() uint32 {
	return uint32(p9.IOHDRSZ + MaxData)
}
