// Package config loads the configuration surface SPEC_FULL.md's
// Configuration paragraph lists as consumed by the core: bind addresses,
// the client's server network, timeouts, and capture defaults. It uses gopkg.in/ini.v1, the library the
// teacher already depends on for structured file parsing.
//
// Everything else a full Compound Pi deployment needs — interactive shell
// options, GUI state, daemonization, logging destinations — is explicitly
// out of scope (spec.md §1) and lives outside this package.
package config

import (
	"fmt"
	"net"
	"time"

	"gopkg.in/ini.v1"
)

// Config is the plain struct the server/client runtimes are constructed
// from. Every field here corresponds to one line of spec.md §6.
type Config struct {
	ServerBindAddr    string
	ClientNetwork     *net.IPNet
	ClientPort        int
	ClientTCPBindAddr string

	RequestTimeout    time.Duration
	RetryInterval     time.Duration
	CaptureDelay      time.Duration
	CaptureCount      int
	VideoPort         bool
	TimeDeltaWarning  time.Duration
	DownloadDirectory string
}

// Default returns the configuration original_source/compoundpi/cli.py ships
// as its out-of-the-box values.
func Default() Config {
	_, network, _ := net.ParseCIDR("192.168.0.0/24")
	return Config{
		ServerBindAddr:    "0.0.0.0:5647",
		ClientNetwork:     network,
		ClientPort:        5647,
		ClientTCPBindAddr: "0.0.0.0:5647",
		RequestTimeout:    5 * time.Second,
		RetryInterval:     200 * time.Millisecond,
		CaptureDelay:      0,
		CaptureCount:      1,
		VideoPort:         false,
		TimeDeltaWarning:  250 * time.Millisecond,
		DownloadDirectory: ".",
	}
}

// Load reads an INI file at path into a Config, starting from Default and
// overriding whichever keys are present. The expected layout is a single
// [compoundpi] section:
//
//	[compoundpi]
//	server_bind = 0.0.0.0:5647
//	client_network = 192.168.0.0/24
//	client_port = 5647
//	client_tcp_bind = 0.0.0.0:5647
//	request_timeout = 5
//	retry_interval = 0.2
//	capture_delay = 0
//	capture_count = 1
//	video_port = false
//	time_delta_warning = 0.25
//	download_directory = ./captures
func Load(path string) (Config, error) {
	cfg := Default()
	file, err := ini.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	section := file.Section("compoundpi")

	if v := section.Key("server_bind").String(); v != "" {
		cfg.ServerBindAddr = v
	}
	if v := section.Key("client_network").String(); v != "" {
		_, network, err := net.ParseCIDR(v)
		if err != nil {
			return Config{}, fmt.Errorf("client_network: %w", err)
		}
		cfg.ClientNetwork = network
	}
	if section.HasKey("client_port") {
		cfg.ClientPort, err = section.Key("client_port").Int()
		if err != nil {
			return Config{}, fmt.Errorf("client_port: %w", err)
		}
	}
	if v := section.Key("client_tcp_bind").String(); v != "" {
		cfg.ClientTCPBindAddr = v
	}
	if section.HasKey("request_timeout") {
		secs, err := section.Key("request_timeout").Float64()
		if err != nil {
			return Config{}, fmt.Errorf("request_timeout: %w", err)
		}
		cfg.RequestTimeout = time.Duration(secs * float64(time.Second))
	}
	if section.HasKey("retry_interval") {
		secs, err := section.Key("retry_interval").Float64()
		if err != nil {
			return Config{}, fmt.Errorf("retry_interval: %w", err)
		}
		cfg.RetryInterval = time.Duration(secs * float64(time.Second))
	}
	if section.HasKey("capture_delay") {
		secs, err := section.Key("capture_delay").Float64()
		if err != nil {
			return Config{}, fmt.Errorf("capture_delay: %w", err)
		}
		cfg.CaptureDelay = time.Duration(secs * float64(time.Second))
	}
	if section.HasKey("capture_count") {
		cfg.CaptureCount, err = section.Key("capture_count").Int()
		if err != nil {
			return Config{}, fmt.Errorf("capture_count: %w", err)
		}
	}
	if section.HasKey("video_port") {
		cfg.VideoPort, err = section.Key("video_port").Bool()
		if err != nil {
			return Config{}, fmt.Errorf("video_port: %w", err)
		}
	}
	if section.HasKey("time_delta_warning") {
		secs, err := section.Key("time_delta_warning").Float64()
		if err != nil {
			return Config{}, fmt.Errorf("time_delta_warning: %w", err)
		}
		cfg.TimeDeltaWarning = time.Duration(secs * float64(time.Second))
	}
	if v := section.Key("download_directory").String(); v != "" {
		cfg.DownloadDirectory = v
	}
	return cfg, nil
}
