package resource

import (
	"regexp"

	"github.com/reddwarf-sh/reddwarf/pkg/apierrors"
)

// dns1123SubdomainRe matches a DNS-1123 subdomain: lowercase alphanumerics
// and '-', starting and ending with an alphanumeric.
var dns1123SubdomainRe = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

const dns1123MaxLength = 253

// ValidateName checks name against the DNS-1123 subdomain rules shared by
// every kind's name and namespace fields.
func ValidateName(field, name string) error {
	if name == "" {
		return apierrors.ValidationFailedf("%s: must not be empty", field)
	}
	if len(name) > dns1123MaxLength {
		return apierrors.ValidationFailedf("%s: must be no more than %d characters", field, dns1123MaxLength)
	}
	if !dns1123SubdomainRe.MatchString(name) {
		return apierrors.ValidationFailedf("%s: %q is not a valid DNS-1123 subdomain", field, name)
	}
	return nil
}

// Validator is implemented by each kind to enforce kind-specific rules
// beyond name/namespace shape, which ValidateObject checks uniformly.
type Validator interface {
	Validate() error
}

// ValidateObject runs the uniform metadata checks (name, and namespace when
// the key is namespaced) plus the kind-specific Validate, when the object
// implements Validator.
func ValidateObject(key Key, obj Object) error {
	if err := ValidateName("metadata.name", key.Name); err != nil {
		return err
	}
	if key.IsNamespaced() {
		if err := ValidateName("metadata.namespace", key.Namespace); err != nil {
			return err
		}
	}
	md := obj.GetMetadata()
	if md.Name != key.Name {
		return apierrors.BadRequestf("metadata.name %q does not match URL name %q", md.Name, key.Name)
	}
	if key.IsNamespaced() && md.Namespace != key.Namespace {
		return apierrors.BadRequestf("metadata.namespace %q does not match URL namespace %q", md.Namespace, key.Namespace)
	}
	if v, ok := obj.(Validator); ok {
		return v.Validate()
	}
	return nil
}

// Validate enforces the Pod-specific rule that at least one container is
// present.
func (p *Pod) Validate() error {
	if len(p.Spec.Containers) == 0 {
		return apierrors.ValidationFailedf("spec.containers: at least one container is required")
	}
	for i, c := range p.Spec.Containers {
		if c.Name == "" {
			return apierrors.ValidationFailedf("spec.containers[%d].name: must not be empty", i)
		}
		if c.Image == "" {
			return apierrors.ValidationFailedf("spec.containers[%d].image: must not be empty", i)
		}
	}
	return nil
}

// Validate enforces that a Service names at least one port.
func (s *Service) Validate() error {
	if len(s.Spec.Ports) == 0 {
		return apierrors.ValidationFailedf("spec.ports: at least one port is required")
	}
	return nil
}
