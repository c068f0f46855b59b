package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Endpoint is a parsed "[user[:password]@]host[:port]" override. Zero fields
// were absent from the string and leave the configured value unchanged.
type Endpoint struct {
	Host     string
	Port     int
	User     string
	Password string
}

// ParseEndpoint parses s. The password may contain ':' and '@' is taken as
// the last one, so "me:p@ss@host" gives password "p@ss".
func ParseEndpoint(s string) (Endpoint, error) {
	var ep Endpoint
	if strings.TrimSpace(s) == "" {
		return ep, fmt.Errorf("empty endpoint")
	}

	hostPart := s
	if at := strings.LastIndex(s, "@"); at >= 0 {
		userPart := s[:at]
		hostPart = s[at+1:]
		user, password, hasPassword := strings.Cut(userPart, ":")
		if user == "" {
			return ep, fmt.Errorf("endpoint %q: empty user before '@'", s)
		}
		ep.User = user
		if hasPassword {
			ep.Password = password
		}
	}

	host, port, hasPort := strings.Cut(hostPart, ":")
	ep.Host = host
	if hasPort {
		if strings.Contains(port, ":") {
			return ep, fmt.Errorf("endpoint %q: too many ':' in host part", s)
		}
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return ep, fmt.Errorf("endpoint %q: invalid port %q", s, port)
		}
		ep.Port = n
	}
	return ep, nil
}

func (e Endpoint) apply(host *string, port *int, user *string, password *string) {
	if e.Host != "" {
		*host = e.Host
	}
	if e.Port != 0 {
		*port = e.Port
	}
	if e.User != "" {
		*user = e.User
	}
	if e.Password != "" {
		*password = e.Password
	}
}
