// Package security validates tool arguments before they become kubectl or helm argv entries.
//
// Arguments are never shell-interpreted, so the concern here is flag injection
// (a value that starts with "-") and values kubectl would reject anyway.
package security

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"k8s.io/apimachinery/pkg/api/validation/path"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/validation"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"
)

var resourceTypePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9.\-/]*$`)

func rejectFlag(field, value string) error {
	if strings.HasPrefix(value, "-") {
		return fmt.Errorf("%s %q must not start with '-'", field, value)
	}
	return nil
}

// ValidateResourceType accepts kinds, plural resources and group-qualified forms such as deployments.apps.
func ValidateResourceType(resourceType string) error {
	if resourceType == "" {
		return fmt.Errorf("resource type is empty")
	}
	if !resourceTypePattern.MatchString(resourceType) {
		return fmt.Errorf("invalid resource type %q", resourceType)
	}
	return nil
}

// ValidateResourceName accepts any name usable as an API path segment, which
// covers RBAC names like system:admin as well as DNS subdomains.
func ValidateResourceName(name string) error {
	if name == "" {
		return fmt.Errorf("resource name is empty")
	}
	if err := rejectFlag("resource name", name); err != nil {
		return err
	}
	if msgs := path.IsValidPathSegmentName(name); len(msgs) > 0 {
		return fmt.Errorf("invalid resource name %q: %s", name, strings.Join(msgs, "; "))
	}
	return nil
}

func ValidateNamespace(namespace string) error {
	if msgs := validation.IsDNS1123Label(namespace); len(msgs) > 0 {
		return fmt.Errorf("invalid namespace %q: %s", namespace, strings.Join(msgs, "; "))
	}
	return nil
}

// ValidateLabelSelector parses selector with the apimachinery parser, so set
// expressions such as "env in (prod,staging)" are accepted as a whole.
func ValidateLabelSelector(selector string) error {
	if err := rejectFlag("label selector", selector); err != nil {
		return err
	}
	if _, err := labels.Parse(selector); err != nil {
		return fmt.Errorf("invalid label selector %q: %w", selector, err)
	}
	return nil
}

// ValidateYAML checks that every document of a multi-document manifest parses.
func ValidateYAML(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is empty")
	}
	reader := utilyaml.NewYAMLReader(bufio.NewReader(strings.NewReader(content)))
	for n := 1; ; n++ {
		doc, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("document %d: %w", n, err)
		}
		if strings.TrimSpace(string(doc)) == "" {
			continue
		}
		if _, err := yaml.YAMLToJSON(doc); err != nil {
			return fmt.Errorf("document %d: %w", n, err)
		}
	}
}

// ValidateHelmName checks release and repository names, which helm limits to DNS-1123 subdomains.
func ValidateHelmName(name string) error {
	if msgs := validation.IsDNS1123Subdomain(name); len(msgs) > 0 {
		return fmt.Errorf("invalid name %q: %s", name, strings.Join(msgs, "; "))
	}
	return nil
}

// ValidateChartRef accepts repo/chart references, local paths and OCI or HTTP(S) URLs.
func ValidateChartRef(chart string) error {
	if chart == "" {
		return fmt.Errorf("chart is empty")
	}
	if err := rejectFlag("chart", chart); err != nil {
		return err
	}
	if strings.Contains(chart, "://") {
		return ValidateURL(chart, "http", "https", "oci")
	}
	return nil
}

// ValidateURL requires an absolute URL with one of the given schemes.
func ValidateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return nil
		}
	}
	return fmt.Errorf("url %q must use one of %v", raw, schemes)
}
