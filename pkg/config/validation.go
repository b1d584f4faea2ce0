package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks struct tags first, then the cross-section rules tags
// cannot express. All failures are reported together.
func Validate(cfg *Config) error {
	var errs []error

	if err := getValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed '%s' validation (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	errs = append(errs, validateMechanisms(cfg)...)
	errs = append(errs, validateServer(cfg)...)
	errs = append(errs, validatePassThrough(&cfg.PassThrough)...)

	return errors.Join(errs...)
}

func validateMechanisms(cfg *Config) []error {
	var errs []error

	mapperRef := func(mech, name string) {
		if _, ok := cfg.IdentityMappers[strings.ToLower(name)]; !ok {
			if _, ok := cfg.IdentityMappers[name]; !ok {
				errs = append(errs, fmt.Errorf("sasl.%s.identity_mapper: unknown identity mapper %q", mech, name))
			}
		}
	}

	for _, mech := range cfg.SASL.Mechanisms {
		switch mech {
		case "PLAIN":
			mapperRef("plain", cfg.SASL.Plain.IdentityMapper)
		case "DIGEST-MD5":
			mapperRef("digest_md5", cfg.SASL.DigestMD5.IdentityMapper)
			if mb := cfg.SASL.DigestMD5.MaxBuffer; mb > 0xFFFFFF {
				errs = append(errs, fmt.Errorf("sasl.digest_md5.max_buffer: %s exceeds 16Mi-1", mb))
			}
		case "GSSAPI":
			mapperRef("gssapi", cfg.SASL.GSSAPI.IdentityMapper)
			if !cfg.Kerberos.Enabled {
				errs = append(errs, fmt.Errorf("sasl.mechanisms: GSSAPI requires kerberos.enabled"))
			}
			if mb := cfg.SASL.GSSAPI.MaxBuffer; mb > 0xFFFFFF {
				errs = append(errs, fmt.Errorf("sasl.gssapi.max_buffer: %s exceeds the 3-byte limit", mb))
			}
		}
	}

	if slices.Contains(cfg.SASL.Mechanisms, "EXTERNAL") && cfg.TLS.ClientAuth == "disabled" {
		errs = append(errs, fmt.Errorf("sasl.mechanisms: EXTERNAL requires tls.client_auth optional or required"))
	}

	return errs
}

func validateServer(cfg *Config) []error {
	var errs []error
	if cfg.Server.LDAPSPort != 0 && (cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "") {
		errs = append(errs, fmt.Errorf("server.ldaps_port: requires tls.cert_file and tls.key_file"))
	}
	if cfg.Server.Port != 0 && cfg.Server.Port == cfg.Server.LDAPSPort {
		errs = append(errs, fmt.Errorf("server.ldaps_port: must differ from server.port"))
	}
	return errs
}

func validatePassThrough(cfg *PassThroughConfig) []error {
	if !cfg.Enabled {
		return nil
	}

	var errs []error
	switch cfg.MappingPolicy {
	case "mapped-bind", "mapped-search":
		if len(cfg.MappedAttributes) == 0 {
			errs = append(errs, fmt.Errorf("passthrough.mapped_attributes: required for %s", cfg.MappingPolicy))
		}
	}
	if cfg.MappingPolicy == "mapped-search" && len(cfg.MappedSearchBaseDNs) == 0 {
		errs = append(errs, fmt.Errorf("passthrough.mapped_search_base_dns: required for mapped-search"))
	}
	if cfg.MappedSearchBindDN != "" && cfg.MappedSearchBindPassword == "" {
		errs = append(errs, fmt.Errorf("passthrough.mapped_search_bind_password: required with mapped_search_bind_dn"))
	}
	if cfg.UseSSL && cfg.UseStartTLS {
		errs = append(errs, fmt.Errorf("passthrough: use_ssl and use_start_tls are mutually exclusive"))
	}
	return errs
}
