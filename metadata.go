package nb2doc

// Reserved keys in per-document metadata entries.
const (
	docDataExecKey = "exec_data"
	docDataGlueKey = "glue"
	docDataJsKey   = "js_files"
)

// MetadataStore is the side-channel map from document identifier to
// derived data: execution results, glue keys, per-page script files and
// reserved notebook metadata. Each build worker owns its own store;
// worker results combine through MergeOther, so no locking is needed.
type MetadataStore struct {
	docs        map[string]map[string]any
	newExecData bool
}

// NewMetadataStore creates an empty store.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{docs: map[string]map[string]any{}}
}

// DocData returns the metadata entry for a document, creating an empty
// one if absent. The returned map is the live entry.
func (s *MetadataStore) DocData(docID string) map[string]any {
	entry, ok := s.docs[docID]
	if !ok {
		entry = map[string]any{}
		s.docs[docID] = entry
	}
	return entry
}

// SetDocData stores a value under key for a document.
func (s *MetadataStore) SetDocData(docID, key string, value any) {
	s.DocData(docID)[key] = value
}

// SetExecData stores a document's execution result and flags that new
// execution data occurred in this build generation.
func (s *MetadataStore) SetExecData(docID string, result *ExecutionResult) {
	s.SetDocData(docID, docDataExecKey, result)
	s.newExecData = true
}

// ExecData returns a document's execution result, or nil.
func (s *MetadataStore) ExecData(docID string) *ExecutionResult {
	result, _ := s.DocData(docID)[docDataExecKey].(*ExecutionResult)
	return result
}

// NewExecData reports whether any document produced new execution data
// since the last ResetExecFlag.
func (s *MetadataStore) NewExecData() bool { return s.newExecData }

// ResetExecFlag clears the new-execution-data flag. It runs at the
// start of each full build pass, before any document is processed.
func (s *MetadataStore) ResetExecFlag() { s.newExecData = false }

// AddJsFile registers a per-document script reference. A later
// registration under the same key overwrites the earlier one.
func (s *MetadataStore) AddJsFile(docID, key string, file JsFile) {
	files, ok := s.DocData(docID)[docDataJsKey].(map[string]JsFile)
	if !ok {
		files = map[string]JsFile{}
		s.SetDocData(docID, docDataJsKey, files)
	}
	files[key] = file
}

// JsFiles returns a document's registered script references.
func (s *MetadataStore) JsFiles(docID string) map[string]JsFile {
	files, _ := s.DocData(docID)[docDataJsKey].(map[string]JsFile)
	return files
}

// GlueKeys returns the glue keys recorded for a document.
func (s *MetadataStore) GlueKeys(docID string) []string {
	keys, _ := s.DocData(docID)[docDataGlueKey].([]string)
	return keys
}

// ClearDoc removes all stored data for a document. Called when a
// document is deleted from the build.
func (s *MetadataStore) ClearDoc(docID string) {
	delete(s.docs, docID)
}

// DocIDs returns the identifiers of all documents with entries.
func (s *MetadataStore) DocIDs() []string {
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	return ids
}

// MergeOther combines results from another store after a partial or
// parallel build. For each named document this store's entry is fully
// replaced by the other store's entry (other wins, not merged
// field-by-field); the new-execution-data flags are OR'd. Each document
// comes from exactly one worker, so merge order cannot change the
// outcome.
func (s *MetadataStore) MergeOther(docIDs []string, other *MetadataStore) {
	for _, id := range docIDs {
		s.docs[id] = other.DocData(id)
	}
	if other.newExecData {
		s.newExecData = true
	}
}
