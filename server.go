package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net"
	"net/http"
	"syscall"
	"time"

	"golang.org/x/crypto/acme/autocert"
)

// withServerHeader adds "Server: pocos-map/<CompileVersion>" to every
// response. HEAD / answers 200 with no body for health checks.
func withServerHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "pocos-map/"+CompileVersion)

		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// serveWithDomain runs:
//   - :80 for ACME HTTP-01 challenges and a 301 to https://<domain>/...
//   - :443 with Let's Encrypt certificates managed by autocert.
//
// When autocert cannot issue for a host (bare IP, odd SNI) the last
// certificate obtained for domain is served instead. Errors are only logged.
func serveWithDomain(domain string, handler http.Handler) {
	certMgr := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache("certs"),
		HostPolicy: func(ctx context.Context, host string) error {
			if host == domain || host == "www."+domain {
				return nil
			}
			// IP addresses are let through; no certificate is requested for them.
			if net.ParseIP(host) != nil {
				return nil
			}
			return errors.New("acme/autocert: host not configured")
		},
	}

	go func() {
		mux80 := http.NewServeMux()
		mux80.Handle("/.well-known/acme-challenge/", certMgr.HTTPHandler(nil))
		mux80.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			target := "https://" + domain + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		})

		log.Printf("HTTP  server (ACME+redirect) ➜ :80")
		if err := (&http.Server{
			Addr:              ":80",
			Handler:           mux80,
			ReadHeaderTimeout: 10 * time.Second,
		}).ListenAndServe(); err != nil {
			log.Printf("error: HTTP server: %v", err)
		}
	}()

	// Daily renewal check.
	go func() {
		t := time.NewTicker(24 * time.Hour)
		defer t.Stop()
		for range t.C {
			if _, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err != nil {
				log.Printf("warn: autocert renewal check: %v", err)
			}
		}
	}()

	tlsCfg := certMgr.TLSConfig()
	tlsCfg.MinVersion = tls.VersionTLS12

	// The fallback certificate is owned by one goroutine; lookups ask it
	// over a channel.
	fallback := make(chan chan *tls.Certificate)
	go func() {
		var cert *tls.Certificate
		retry := time.NewTicker(time.Minute)
		defer retry.Stop()
		fetch := func() {
			if c, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err == nil {
				cert = c
			}
		}
		fetch()
		for {
			select {
			case <-retry.C:
				if cert == nil {
					fetch()
				}
			case reply := <-fallback:
				reply <- cert
			}
		}
	}()
	tlsCfg.GetCertificate = func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		c, err := certMgr.GetCertificate(hello)
		if err == nil {
			return c, nil
		}
		reply := make(chan *tls.Certificate, 1)
		fallback <- reply
		if def := <-reply; def != nil {
			return def, nil
		}
		return nil, err
	}

	log.Printf("HTTPS server for %s ➜ :443", domain)
	if err := (&http.Server{
		Addr:              ":443",
		Handler:           handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}).ListenAndServeTLS("", ""); err != nil {
		log.Printf("error: HTTPS server: %v", err)
	}
}

// isClientDisconnect reports write errors caused by the browser going away.
func isClientDisconnect(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, net.ErrClosed)
}
