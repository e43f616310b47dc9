package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Announce the KISS over TCP service using DNS-SD
 *
 * Description:
 *
 *     Most people have typed in enough IP addresses and ports by now, and
 *     would rather just select an available TNC that is automatically
 *     discovered on the local network.  Even more so on a mobile device
 *     such an Android or iOS phone or tablet.
 *
 *     This uses the pure-Go github.com/brutella/dnssd package, so no
 *     system daemon is needed.
 */

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

const DNS_SD_SERVICE = "_kiss-tnc._tcp"

/* Get a default service name to publish. By default,
 * "LoRaTNCX on <hostname>", or just "LoRaTNCX" if hostname cannot
 * be obtained.
 */
func dnsSDDefaultServiceName() string {
	var hostname, hostnameErr = os.Hostname()
	if hostnameErr != nil {
		return FIRMWARE_NAME
	}

	// on some systems, an FQDN is returned; remove domain part
	hostname, _, _ = strings.Cut(hostname, ".")

	return FIRMWARE_NAME + " on " + hostname
}

/*-------------------------------------------------------------------
 *
 * Name:	AnnounceKissService
 *
 * Purpose:	Advertise the KISS TCP port until ctx is cancelled.
 *
 * Inputs:	name	- Service instance name.  Empty for the default.
 *		port	- TCP port the KISS server listens on.
 *
 * Returns:	Once the responder is running.  Errors setting it
 *		up are returned; later ones are only logged.
 *
 *--------------------------------------------------------------------*/

func AnnounceKissService(ctx context.Context, name string, port int, logger *log.Logger) error {
	logger = componentLogger(logger, "dns-sd")

	if name == "" {
		name = dnsSDDefaultServiceName()
	}

	var cfg = dnssd.Config{ //nolint:exhaustruct
		Name: name,
		Type: DNS_SD_SERVICE,
		Port: port,
	}

	var sv, svErr = dnssd.NewService(cfg)
	if svErr != nil {
		return fmt.Errorf("DNS-SD: failed to create service: %w", svErr)
	}

	var rp, rpErr = dnssd.NewResponder()
	if rpErr != nil {
		return fmt.Errorf("DNS-SD: failed to create responder: %w", rpErr)
	}

	if _, err := rp.Add(sv); err != nil {
		return fmt.Errorf("DNS-SD: failed to add service: %w", err)
	}

	logger.Info("Announcing KISS TCP", "port", port, "name", name)

	go func() {
		var respondErr = rp.Respond(ctx)
		if respondErr != nil && ctx.Err() == nil {
			logger.Error("Responder error", "err", respondErr)
		}
	}()

	return nil
}

/* end dns_sd.go */
