package connstr

import (
	"strconv"
	"strings"
	"time"

	"github.com/couchkit/couchkit/lib/errors"
)

// Default timeouts applied when neither the connection string nor the
// cluster options override them.
const (
	DefaultKVTimeout         = 2500 * time.Millisecond
	DefaultKVDurableTimeout  = 10 * time.Second
	DefaultQueryTimeout      = 75 * time.Second
	DefaultManagementTimeout = 75 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
)

// Timeouts groups the per-service operation deadlines.
type Timeouts struct {
	KV         time.Duration
	KVDurable  time.Duration
	Query      time.Duration
	Management time.Duration
	Connect    time.Duration
}

// Timeouts extracts the timeout family from the option set. Values are
// seconds, fractions allowed. Unset entries fall back to the defaults.
func (s ConnSpec) Timeouts() (Timeouts, error) {
	t := Timeouts{
		KV:         DefaultKVTimeout,
		KVDurable:  DefaultKVDurableTimeout,
		Query:      DefaultQueryTimeout,
		Management: DefaultManagementTimeout,
		Connect:    DefaultConnectTimeout,
	}
	entries := []struct {
		name string
		dst  *time.Duration
	}{
		{"kv_timeout", &t.KV},
		{"kv_durable_timeout", &t.KVDurable},
		{"query_timeout", &t.Query},
		{"management_timeout", &t.Management},
		{"connect_timeout", &t.Connect},
	}
	for _, e := range entries {
		raw, ok := s.Options[e.name]
		if !ok {
			continue
		}
		secs, err := strconv.ParseFloat(raw, 64)
		if err != nil || secs <= 0 {
			return Timeouts{}, errors.Newf(errors.ErrInvalidArgument,
				"option %s=%q must be a positive number of seconds", e.name, raw)
		}
		*e.dst = time.Duration(secs * float64(time.Second))
	}
	return t, nil
}

// TLSVerify reports whether peer verification is enabled. The default for
// the secure schemes is to verify; tls_verify=none disables it.
func (s ConnSpec) TLSVerify() (bool, error) {
	raw, ok := s.Options["tls_verify"]
	if !ok {
		return true, nil
	}
	switch strings.ToLower(raw) {
	case "none":
		return false, nil
	case "peer":
		return true, nil
	default:
		return false, errors.Newf(errors.ErrInvalidArgument,
			"option tls_verify=%q must be one of none, peer", raw)
	}
}

// CertPath returns the client certificate path option, empty when unset.
func (s ConnSpec) CertPath() string {
	return s.Options["cert_path"]
}

// TrustStorePath returns the CA trust store path option, empty when unset.
func (s ConnSpec) TrustStorePath() string {
	return s.Options["trust_store_path"]
}

// SASLMechanisms returns the allowed SASL mechanism names, upper-cased,
// in the order given. Nil when the option is unset.
func (s ConnSpec) SASLMechanisms() []string {
	raw, ok := s.Options["allowed_sasl_mechanisms"]
	if !ok {
		return nil
	}
	var mechs []string
	for _, m := range strings.Split(raw, ",") {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		mechs = append(mechs, strings.ToUpper(m))
	}
	return mechs
}

// Engine names the native engine implementation to use. Defaults to the
// in-process birch engine.
func (s ConnSpec) Engine() string {
	if e, ok := s.Options["engine"]; ok && e != "" {
		return strings.ToLower(e)
	}
	return "birch"
}

// NumShards returns the shard-count hint for the birch engine, 0 meaning
// "engine default".
func (s ConnSpec) NumShards() (int, error) {
	raw, ok := s.Options["num_shards"]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.Newf(errors.ErrInvalidArgument,
			"option num_shards=%q must be a non-negative integer", raw)
	}
	return n, nil
}
