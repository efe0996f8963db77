package tools

import "github.com/KvFxKaido/Push-sub001/internal/auditor"

// NewDefaultRegistry builds the fixed, closed tool set (§4.3) wired to a
// single auditor stream function (nil is valid and triggers the Auditor's
// fail-safe path on every prepare_commit call).
func NewDefaultRegistry(auditorStream auditor.StreamFunc) *Registry {
	r := NewRegistry()
	r.Register(&ExecTool{})
	r.Register(&ReadFileTool{})
	r.Register(&ListDirTool{})
	r.Register(&SearchTool{})
	r.Register(&WriteFileTool{})
	r.Register(&EditFileTool{})
	r.Register(&ApplyPatchsetTool{})
	r.Register(&DiffTool{})
	r.Register(&PrepareCommitTool{AuditorStream: auditorStream})
	r.Register(&PushTool{})
	r.Register(&SaveDraftTool{})
	r.Register(&RunTestsTool{})
	r.Register(&CheckTypesTool{})
	r.Register(&ReadSymbolsTool{})
	r.Register(&DownloadTool{})
	r.Register(&PromoteToGithubTool{})
	return r
}
