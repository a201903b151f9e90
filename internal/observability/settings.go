package observability

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ca-srg/twangy/internal/config"
)

const (
	protocolHTTP = "http/protobuf"
	protocolGRPC = "grpc"

	serviceNameKey = "service.name"

	defaultExportInterval = 30 * time.Second
)

var errNoEndpoint = errors.New("observability: OTEL_EXPORTER_OTLP_ENDPOINT is required when OTEL_ENABLED=true")

// Settings is the telemetry subset of config.Config after normalization.
type Settings struct {
	Enabled        bool
	ServiceName    string
	Endpoint       string
	Protocol       string
	Attributes     map[string]string
	Sampler        string
	SamplerArg     float64
	ExportInterval time.Duration
}

// SettingsFrom normalizes and validates the OTEL_* fields of cfg.
func SettingsFrom(cfg *config.Config) (*Settings, error) {
	if cfg == nil {
		return nil, fmt.Errorf("observability: nil configuration")
	}
	attrs, err := parseAttributes(cfg.OTelResourceAttributes)
	if err != nil {
		return nil, fmt.Errorf("observability: OTEL_RESOURCE_ATTRIBUTES: %w", err)
	}

	s := &Settings{
		Enabled:        cfg.OTelEnabled,
		ServiceName:    strings.TrimSpace(cfg.OTelServiceName),
		Endpoint:       strings.TrimSpace(cfg.OTelExporterOTLPEndpoint),
		Protocol:       strings.ToLower(strings.TrimSpace(cfg.OTelExporterOTLPProtocol)),
		Attributes:     attrs,
		Sampler:        strings.ToLower(strings.TrimSpace(cfg.OTelTracesSampler)),
		SamplerArg:     cfg.OTelTracesSamplerArg,
		ExportInterval: defaultExportInterval,
	}
	if s.ServiceName == "" {
		s.ServiceName = "twangy"
	}
	if s.Protocol == "" {
		s.Protocol = protocolHTTP
	}
	if s.Sampler == "" {
		s.Sampler = "always_on"
	}
	if _, ok := s.Attributes[serviceNameKey]; !ok {
		s.Attributes[serviceNameKey] = s.ServiceName
	}

	if !s.Enabled {
		return s, nil
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.Endpoint == "" {
		return errNoEndpoint
	}
	switch s.Protocol {
	case protocolHTTP:
		u, err := url.Parse(s.Endpoint)
		if err != nil {
			return fmt.Errorf("observability: invalid endpoint %q: %w", s.Endpoint, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("observability: endpoint %q needs an http(s) scheme and host for %s", s.Endpoint, protocolHTTP)
		}
	case protocolGRPC:
		if _, _, err := grpcTarget(s.Endpoint); err != nil {
			return fmt.Errorf("observability: invalid endpoint %q: %w", s.Endpoint, err)
		}
	default:
		return fmt.Errorf("observability: unsupported OTEL_EXPORTER_OTLP_PROTOCOL %q", s.Protocol)
	}

	if s.SamplerArg < 0 {
		return fmt.Errorf("observability: OTEL_TRACES_SAMPLER_ARG must not be negative")
	}
	if s.Sampler == "traceidratio" && (s.SamplerArg <= 0 || s.SamplerArg > 1) {
		return fmt.Errorf("observability: traceidratio needs OTEL_TRACES_SAMPLER_ARG in (0, 1]")
	}
	return nil
}

// parseAttributes reads the key1=value1,key2=value2 form.
func parseAttributes(raw string) (map[string]string, error) {
	attrs := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("missing '=' in %q", pair)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("empty key in %q", pair)
		}
		attrs[key] = strings.TrimSpace(value)
	}
	return attrs, nil
}
