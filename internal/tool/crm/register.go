package crm

import "github.com/nexocrm/agentgate/internal/tool"

// Compile-time contract checks.
var (
	_ tool.Tool        = (*SearchLeads)(nil)
	_ tool.Tool        = (*CreateCase)(nil)
	_ tool.Tool        = (*UpdateDeal)(nil)
	_ tool.Tool        = (*DraftMessage)(nil)
	_ tool.Rollbacker  = (*CreateCase)(nil)
	_ tool.Rollbacker  = (*UpdateDeal)(nil)
	_ tool.Rollbacker  = (*DraftMessage)(nil)
	_ tool.OwnerLookup = (*UpdateDeal)(nil)
)

// RegisterAll wires the built-in CRM tool set into a registry.
func RegisterAll(r *tool.Registry, store *Store) error {
	for _, t := range []tool.Tool{
		NewSearchLeads(store),
		NewCreateCase(store),
		NewUpdateDeal(store),
		NewDraftMessage(store),
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
