/*
Package tls builds the HTTPS configuration for the ledger API server.

Certificates are served through a Reloader so a renewed certificate on
disk (cert-manager, certbot) is picked up without restarting the service:

	tlsConfig, reloader, err := tls.ServerConfig(&cfg.Server.TLS)
	if err != nil {
	    return err
	}
	go reloader.Watch(ctx)
	ln = tls.NewListener(ln, tlsConfig)

A failed reload keeps serving the previous certificate.

Setting client_ca_file turns on client certificate verification; the
client_auth mode decides whether a certificate is required.
*/
package tls
