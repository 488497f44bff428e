// Package connstr parses couchkit connection strings.
//
// A connection string has the shape
//
//	scheme://host[:port][,host[:port]...][/bucket][?option=value&...]
//
// The scheme selects the backend (see core.SelectBackend), hosts name the
// endpoints, the optional single path segment pins a default bucket and the
// query part carries tuning options. Legacy option names from older SDK
// generations are translated to their current form during parsing, so
// downstream code only ever sees the current names.
package connstr

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/couchkit/couchkit/lib/errors"
)

var (
	schemeRegexp = regexp.MustCompile(`^[a-z][+a-z0-9]*$`)
	hostRegexp   = regexp.MustCompile(`^([0-9a-z._-]+|\[[:0-9a-fA-F]+\])(:([0-9]+))?$`)
)

// Address is one endpoint of the cluster. A zero Port means "use the
// backend's default port".
type Address struct {
	Host string
	Port uint16
}

// HostPort renders the address as host:port, leaving the port off when it
// is unset.
func (a Address) HostPort() string {
	if a.Port == 0 {
		return a.Host
	}
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// ConnSpec is the parsed form of a connection string.
type ConnSpec struct {
	Scheme  string
	Hosts   []Address
	Bucket  string
	Options map[string]string
}

// String reassembles the spec. Intended for log output.
func (s ConnSpec) String() string {
	var sb strings.Builder
	sb.WriteString(s.Scheme)
	sb.WriteString("://")
	hosts := make([]string, len(s.Hosts))
	for i, h := range s.Hosts {
		hosts[i] = h.HostPort()
	}
	sb.WriteString(strings.Join(hosts, ","))
	if s.Bucket != "" {
		sb.WriteString("/")
		sb.WriteString(s.Bucket)
	}
	if len(s.Options) > 0 {
		vals := url.Values{}
		for k, v := range s.Options {
			vals.Set(k, v)
		}
		sb.WriteString("?")
		sb.WriteString(vals.Encode())
	}
	return sb.String()
}

// Option returns the named option value and whether it was present.
func (s ConnSpec) Option(name string) (string, bool) {
	v, ok := s.Options[name]
	return v, ok
}

// legacy option names still accepted on the connection string, mapped to
// their current form
var legacyOptions = map[string]string{
	"operation_timeout":    "kv_timeout",
	"n1ql_timeout":         "query_timeout",
	"http_timeout":         "management_timeout",
	"config_total_timeout": "connect_timeout",
	"ssl":                  "tls_verify",
	"certpath":             "cert_path",
	"truststorepath":       "trust_store_path",
	"sasl_mech_force":      "allowed_sasl_mechanisms",
}

// Parse parses a connection string into a ConnSpec. The scheme defaults to
// "couchbase" and the host list to localhost when omitted. It validates
// grammar only; whether the scheme names a known backend is decided by
// core.SelectBackend.
func Parse(connStr string) (ConnSpec, error) {
	spec := ConnSpec{
		Scheme:  "couchbase",
		Options: map[string]string{},
	}

	rest := strings.TrimSpace(connStr)
	if idx := strings.Index(rest, "://"); idx >= 0 {
		scheme := strings.ToLower(rest[:idx])
		if !schemeRegexp.MatchString(scheme) {
			return ConnSpec{}, errors.Newf(errors.ErrInvalidArgument,
				"invalid connection string scheme %q", rest[:idx])
		}
		spec.Scheme = scheme
		rest = rest[idx+3:]
	}

	if idx := strings.Index(rest, "?"); idx >= 0 {
		if err := parseOptions(rest[idx+1:], spec.Options); err != nil {
			return ConnSpec{}, err
		}
		rest = rest[:idx]
	}

	if idx := strings.Index(rest, "/"); idx >= 0 {
		bucket := rest[idx+1:]
		if strings.Contains(bucket, "/") {
			return ConnSpec{}, errors.Newf(errors.ErrInvalidArgument,
				"connection string path %q must name at most one bucket", rest[idx:])
		}
		unescaped, err := url.PathUnescape(bucket)
		if err != nil {
			return ConnSpec{}, errors.Newf(errors.ErrInvalidArgument,
				"invalid bucket name in connection string: %v", err)
		}
		spec.Bucket = unescaped
		rest = rest[:idx]
	}

	hosts, err := parseHosts(rest)
	if err != nil {
		return ConnSpec{}, err
	}
	spec.Hosts = hosts

	return spec, nil
}

func parseHosts(hostPart string) ([]Address, error) {
	if strings.TrimSpace(hostPart) == "" {
		return []Address{{Host: "localhost"}}, nil
	}
	var hosts []Address
	for _, part := range strings.Split(hostPart, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m := hostRegexp.FindStringSubmatch(strings.ToLower(part))
		if m == nil {
			return nil, errors.Newf(errors.ErrInvalidArgument,
				"invalid host %q in connection string", part)
		}
		addr := Address{Host: m[1]}
		if m[3] != "" {
			port, err := strconv.Atoi(m[3])
			if err != nil || port < 1 || port > 65535 {
				return nil, errors.Newf(errors.ErrInvalidArgument,
					"invalid port in %q, must be in range 1-65535", part)
			}
			addr.Port = uint16(port)
		}
		hosts = append(hosts, addr)
	}
	if len(hosts) == 0 {
		return []Address{{Host: "localhost"}}, nil
	}
	return hosts, nil
}

func parseOptions(query string, into map[string]string) error {
	vals, err := url.ParseQuery(query)
	if err != nil {
		return errors.Newf(errors.ErrInvalidArgument,
			"invalid connection string options: %v", err)
	}
	for key, list := range vals {
		if len(list) == 0 {
			continue
		}
		value := list[len(list)-1]
		name := strings.ToLower(key)
		if modern, ok := legacyOptions[name]; ok {
			value = translateLegacyValue(name, value)
			name = modern
			// an explicit current-form option beats its legacy alias
			if _, exists := into[name]; exists {
				continue
			}
			if _, exists := vals[name]; exists {
				continue
			}
		}
		into[name] = value
	}
	return nil
}

// translateLegacyValue converts option values whose legacy vocabulary
// differs from the current one.
func translateLegacyValue(legacyName, value string) string {
	if legacyName != "ssl" {
		return value
	}
	switch strings.ToLower(value) {
	case "off", "false", "no", "no_verify":
		return "none"
	default:
		return "peer"
	}
}
