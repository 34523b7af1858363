package config

import (
	"fmt"

	"github.com/vaigai-ai/vaigai/pkg/validation"
)

// Validate checks the configuration and reports every invalid field.
func (c *Config) Validate() error {
	validate, trans, err := validation.New("yaml")
	if err != nil {
		return err
	}

	err = validate.Struct(c)
	if err == nil {
		return nil
	}
	msg, ok := validation.Messages(err, trans)
	if !ok {
		return fmt.Errorf("validate config: %w", err)
	}
	return fmt.Errorf("invalid config: %s", msg)
}
