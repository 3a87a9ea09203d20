package root

import (
	"github.com/channelpulse/channelpulse-saas/apps/cli/cmd/bootstrap"
	tenantcmd "github.com/channelpulse/channelpulse-saas/apps/cli/cmd/tenant"
	vendorconfigcmd "github.com/channelpulse/channelpulse-saas/apps/cli/cmd/vendorconfig"
)

func init() {
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(tenantcmd.Command())
	Root().AddCommand(vendorconfigcmd.Command())
}
