// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package busrpc

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/amoskys/amoskys/internal/errors"
)

// DialOptions configures an agent's mTLS connection to the EventBus.
type DialOptions struct {
	CertPath   string
	KeyPath    string
	ServerCAPath string
	Insecure   bool // development only: plaintext, no client cert
}

// Dial opens a gRPC client connection to addr using mTLS
// (tls.LoadX509KeyPair + credentials.NewTLS), also verifying the
// server's CA.
func Dial(addr string, opts DialOptions) (*grpc.ClientConn, error) {
	var dialOpts []grpc.DialOption

	if opts.Insecure {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		cert, err := tls.LoadX509KeyPair(opts.CertPath, opts.KeyPath)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindPermanent, "load client certificate")
		}
		pool, err := loadCAPool(opts.ServerCAPath)
		if err != nil {
			return nil, err
		}
		creds := credentials.NewTLS(&tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      pool,
			MinVersion:   tls.VersionTLS12,
		})
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(creds))
	}

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindTransient, "dial bus")
	}
	return conn, nil
}

// ListenOptions configures the EventBus's mTLS listener.
type ListenOptions struct {
	Address           string
	CertPath          string
	KeyPath           string
	ClientCAPath      string
	RequireClientAuth bool
}

// Listen builds a net.Listener and matching grpc.ServerOption wired for
// mTLS 1.2+ with required client certificates, or a relaxed mode for
// non-production deployments per EVENTBUS_REQUIRE_CLIENT_AUTH.
func Listen(opts ListenOptions) (net.Listener, grpc.ServerOption, error) {
	lis, err := net.Listen("tcp", opts.Address)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.KindInternal, "listen")
	}

	cert, err := tls.LoadX509KeyPair(opts.CertPath, opts.KeyPath)
	if err != nil {
		lis.Close()
		return nil, nil, errors.Wrap(err, errors.KindPermanent, "load server certificate")
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if opts.RequireClientAuth {
		pool, err := loadCAPool(opts.ClientCAPath)
		if err != nil {
			lis.Close()
			return nil, nil, err
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		tlsCfg.ClientAuth = tls.RequestClientCert
	}

	return lis, grpc.Creds(credentials.NewTLS(tlsCfg)), nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindPermanent, "read CA bundle")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, errors.New(errors.KindPermanent, fmt.Sprintf("no certificates parsed from %s", path))
	}
	return pool, nil
}
