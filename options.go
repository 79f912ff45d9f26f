package linkcore

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Protocol timing and sizing defaults. The ratios between the timing
// values matter more than their absolute magnitudes: the hello and retry
// intervals must fit several attempts inside the connect and peer
// timeouts.
const (
	DefaultHelloInterval     = 100 * time.Millisecond
	DefaultRetryInterval     = 50 * time.Millisecond
	DefaultKeepaliveInterval = 500 * time.Millisecond
	DefaultPeerTimeout       = 2 * time.Second
	DefaultConnectTimeout    = 2 * time.Second
	DefaultMaxRetries        = 20
	DefaultPollWordBudget    = 128
	DefaultRecvQueueBytes    = 8192
	DefaultTxSpaceSpins      = 4096
)

// Options contains configuration for creating a Link. Zero or negative
// fields select their defaults, so a partially populated struct is safe
// to pass to New.
type Options struct {
	// HelloInterval is how often the initiator repeats HELLO while the
	// handshake is unanswered.
	HelloInterval time.Duration

	// RetryInterval is how long an unacknowledged reliable frame waits
	// before being retransmitted.
	RetryInterval time.Duration

	// KeepaliveInterval bounds transmit silence while connected; an
	// empty keepalive frame is sent when it elapses.
	KeepaliveInterval time.Duration

	// PeerTimeout is how much receive silence is tolerated before the
	// session is declared dead.
	PeerTimeout time.Duration

	// ConnectTimeout bounds the handshake when Connect is called with
	// no explicit deadline.
	ConnectTimeout time.Duration

	// MaxRetries is how many retransmissions of one reliable frame are
	// attempted before the session is declared dead.
	MaxRetries int

	// PollWordBudget caps how many words one Poll drains from the
	// transport, keeping each tick bounded.
	PollWordBudget int

	// RecvQueueBytes bounds the receive queue. Each queued message is
	// charged its payload length plus record overhead, rounded up to a
	// word boundary.
	RecvQueueBytes int

	// TxSpaceSpins caps how many times the transmitter re-samples the
	// transport status while waiting for queue space.
	TxSpaceSpins int
}

// NewOptions creates a new Options struct with default settings.
func NewOptions() *Options {
	return &Options{
		HelloInterval:     DefaultHelloInterval,
		RetryInterval:     DefaultRetryInterval,
		KeepaliveInterval: DefaultKeepaliveInterval,
		PeerTimeout:       DefaultPeerTimeout,
		ConnectTimeout:    DefaultConnectTimeout,
		MaxRetries:        DefaultMaxRetries,
		PollWordBudget:    DefaultPollWordBudget,
		RecvQueueBytes:    DefaultRecvQueueBytes,
		TxSpaceSpins:      DefaultTxSpaceSpins,
	}
}

// withDefaults returns a copy of o with zero and negative fields replaced
// by their defaults.
func (o Options) withDefaults() Options {
	if o.HelloInterval <= 0 {
		o.HelloInterval = DefaultHelloInterval
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if o.PeerTimeout <= 0 {
		o.PeerTimeout = DefaultPeerTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.PollWordBudget <= 0 {
		o.PollWordBudget = DefaultPollWordBudget
	}
	if o.RecvQueueBytes <= 0 {
		o.RecvQueueBytes = DefaultRecvQueueBytes
	}
	if o.TxSpaceSpins <= 0 {
		o.TxSpaceSpins = DefaultTxSpaceSpins
	}
	return o
}

// fileOptions is the TOML shape of an options file. Durations are strings
// in Go syntax ("50ms", "2s").
type fileOptions struct {
	HelloInterval     string `toml:"hello_interval"`
	RetryInterval     string `toml:"retry_interval"`
	KeepaliveInterval string `toml:"keepalive_interval"`
	PeerTimeout       string `toml:"peer_timeout"`
	ConnectTimeout    string `toml:"connect_timeout"`
	MaxRetries        int    `toml:"max_retries"`
	PollWordBudget    int    `toml:"poll_word_budget"`
	RecvQueueBytes    int    `toml:"recv_queue_bytes"`
	TxSpaceSpins      int    `toml:"tx_space_spins"`
}

// LoadOptions reads a TOML options file. Keys the file leaves unset keep
// their defaults.
func LoadOptions(path string) (*Options, error) {
	opts := NewOptions()

	var raw fileOptions
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load link options: %w", err)
	}

	parseDur := func(key, text string, dst *time.Duration) error {
		if !meta.IsDefined(key) {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(text))
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("parse %s: must be positive", key)
		}
		*dst = d
		return nil
	}

	if err := parseDur("hello_interval", raw.HelloInterval, &opts.HelloInterval); err != nil {
		return nil, err
	}
	if err := parseDur("retry_interval", raw.RetryInterval, &opts.RetryInterval); err != nil {
		return nil, err
	}
	if err := parseDur("keepalive_interval", raw.KeepaliveInterval, &opts.KeepaliveInterval); err != nil {
		return nil, err
	}
	if err := parseDur("peer_timeout", raw.PeerTimeout, &opts.PeerTimeout); err != nil {
		return nil, err
	}
	if err := parseDur("connect_timeout", raw.ConnectTimeout, &opts.ConnectTimeout); err != nil {
		return nil, err
	}

	if meta.IsDefined("max_retries") {
		if raw.MaxRetries <= 0 {
			return nil, fmt.Errorf("parse max_retries: must be positive")
		}
		opts.MaxRetries = raw.MaxRetries
	}
	if meta.IsDefined("poll_word_budget") {
		if raw.PollWordBudget <= 0 {
			return nil, fmt.Errorf("parse poll_word_budget: must be positive")
		}
		opts.PollWordBudget = raw.PollWordBudget
	}
	if meta.IsDefined("recv_queue_bytes") {
		if raw.RecvQueueBytes <= 0 {
			return nil, fmt.Errorf("parse recv_queue_bytes: must be positive")
		}
		opts.RecvQueueBytes = raw.RecvQueueBytes
	}
	if meta.IsDefined("tx_space_spins") {
		if raw.TxSpaceSpins <= 0 {
			return nil, fmt.Errorf("parse tx_space_spins: must be positive")
		}
		opts.TxSpaceSpins = raw.TxSpaceSpins
	}

	return opts, nil
}
