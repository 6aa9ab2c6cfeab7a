package workers

import (
	"github.com/fyrsmithlabs/vectoradmin/internal/runtime"
	"github.com/fyrsmithlabs/vectoradmin/internal/vectordb"
)

// Task name segments. Provider-scoped tasks are "<provider>/<operation>";
// the provider prefix only selects the subject, the handler resolves the
// actual connector from the organization's stored connection.
const (
	opAddDocument    = "addDocument"
	opDeleteDocument = "deleteDocument"
	opDeleteFragment = "deleteFragment"
	opCloneWorkspace = "cloneWorkspace"

	TaskMigrate = "workspace/migrate"
	TaskReset   = "workspace/reset"
)

var providerTypes = []string{
	vectordb.TypePinecone,
	vectordb.TypeChroma,
	vectordb.TypeQdrant,
	vectordb.TypeWeaviate,
}

// BuildRegistry assembles the full task registry handed to the dispatcher
// at startup. Every dispatchable task name is listed here; there is no
// runtime registration.
func (s *Service) BuildRegistry() runtime.Registry {
	registry := runtime.Registry{
		TaskMigrate: s.handle(s.migrateOrganization),
		TaskReset:   s.handle(s.resetOrganization),
	}
	for _, provider := range providerTypes {
		registry[provider+"/"+opAddDocument] = s.handle(s.addDocuments)
		registry[provider+"/"+opDeleteDocument] = s.handle(s.deleteDocument)
		registry[provider+"/"+opDeleteFragment] = s.handle(s.deleteFragment)
		registry[provider+"/"+opCloneWorkspace] = s.handle(s.cloneWorkspace)
	}
	return registry
}
