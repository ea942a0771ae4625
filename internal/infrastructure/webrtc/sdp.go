package webrtc

import (
	"errors"
	"strconv"
	"strings"

	"examcast/internal/core/domain"
)

// transportParameters is everything a client needs to connect to a
// transport, lifted out of the local session description.
type transportParameters struct {
	Ice        domain.IceParameters
	Candidates []domain.IceCandidate
	Dtls       domain.DtlsParameters
}

// parseTransportParameters extracts ICE credentials, host candidates and the
// DTLS fingerprint from an SDP offer. Attributes repeated per media section
// keep the first occurrence.
func parseTransportParameters(sdp string) (transportParameters, error) {
	var params transportParameters

	for _, line := range strings.Split(sdp, "\r\n") {
		switch {
		case strings.HasPrefix(line, "a=ice-ufrag:"):
			if params.Ice.UsernameFragment == "" {
				params.Ice.UsernameFragment = strings.TrimPrefix(line, "a=ice-ufrag:")
			}
		case strings.HasPrefix(line, "a=ice-pwd:"):
			if params.Ice.Password == "" {
				params.Ice.Password = strings.TrimPrefix(line, "a=ice-pwd:")
			}
		case strings.HasPrefix(line, "a=fingerprint:"):
			if len(params.Dtls.Fingerprints) == 0 {
				algorithm, value, ok := strings.Cut(strings.TrimPrefix(line, "a=fingerprint:"), " ")
				if ok {
					params.Dtls = domain.DtlsParameters{
						Role: "auto",
						Fingerprints: []domain.DtlsFingerprint{
							{Algorithm: algorithm, Value: value},
						},
					}
				}
			}
		case strings.HasPrefix(line, "a=candidate:"):
			candidate, err := parseCandidate(strings.TrimPrefix(line, "a=candidate:"))
			if err != nil {
				continue
			}
			params.Candidates = append(params.Candidates, candidate)
		}
	}

	if params.Ice.UsernameFragment == "" || params.Ice.Password == "" {
		return params, errors.New("sdp missing ice credentials")
	}
	if len(params.Dtls.Fingerprints) == 0 {
		return params, errors.New("sdp missing dtls fingerprint")
	}
	return params, nil
}

// parseCandidate parses the attribute value after "a=candidate:", e.g.
// "4234997325 1 udp 2043278322 192.0.2.3 44323 typ host".
func parseCandidate(value string) (domain.IceCandidate, error) {
	fields := strings.Fields(value)
	if len(fields) < 8 || fields[6] != "typ" {
		return domain.IceCandidate{}, errors.New("malformed candidate")
	}

	component, err := strconv.Atoi(fields[1])
	if err != nil {
		return domain.IceCandidate{}, err
	}
	priority, err := strconv.Atoi(fields[3])
	if err != nil {
		return domain.IceCandidate{}, err
	}
	port, err := strconv.Atoi(fields[5])
	if err != nil {
		return domain.IceCandidate{}, err
	}

	return domain.IceCandidate{
		Foundation: fields[0],
		Component:  component,
		Protocol:   strings.ToLower(fields[2]),
		Priority:   priority,
		IP:         fields[4],
		Port:       port,
		Type:       fields[7],
	}, nil
}
