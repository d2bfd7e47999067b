// Package notices holds the persistence models of the batch notice workflow.
package notices

// All lists every model owned by the workflow, in migration order.
func All() []any {
	return []any{
		&BatchUpload{},
		&ServedNotice{},
		&NoticeBatchItem{},
		&NoticeComponent{},
		&IDMapping{},
	}
}
