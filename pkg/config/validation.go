package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittoauth/pkg/auth/oid"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// getValidator returns the shared validator with the custom tags registered.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// "mechanism": the name resolves to a known mechanism.
		_ = validate.RegisterValidation("mechanism", func(fl validator.FieldLevel) bool {
			_, ok := oid.MechanismByName(fl.Field().String())
			return ok
		})
	})
	return validate
}

// Validate checks the configuration against its struct tags and the
// cross-field rules that tags cannot express.
//
// Validation does not normalize; ApplyDefaults does.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if err := getValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	for principal := range cfg.Kerberos.IdentityMapping.StaticMap {
		if !strings.Contains(principal, "@") {
			return fmt.Errorf("kerberos.identity_mapping.static_map: principal %q must be user@REALM", principal)
		}
	}

	return nil
}

// formatValidationErrors renders each failed field as "Namespace: tag".
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		msg := fmt.Sprintf("%s: failed '%s' validation", field, fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s: failed '%s=%s' validation", field, fe.Tag(), fe.Param())
		}
		if fe.Tag() == "mechanism" {
			msg = fmt.Sprintf("%s: unknown mechanism %q", field, fe.Value())
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// MechanismOIDs resolves the configured mechanism names, in order, through r.
func (c *NegotiationConfig) MechanismOIDs(r *oid.Registry) ([]oid.MechanismOID, error) {
	mechs := make([]oid.MechanismOID, 0, len(c.Mechanisms))
	for _, name := range c.Mechanisms {
		m, ok := oid.MechanismByName(name)
		if !ok {
			return nil, fmt.Errorf("negotiation.mechanisms: unknown mechanism %q", name)
		}
		o, err := r.Lookup(m)
		if err != nil {
			return nil, fmt.Errorf("negotiation.mechanisms: %w", err)
		}
		mechs = append(mechs, o)
	}
	return mechs, nil
}
