package notices

import (
	"gorm.io/gorm"

	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

// Set groups every repository of the batch workflow.
type Set struct {
	Batches    BatchUploadRepo
	Notices    ServedNoticeRepo
	Items      NoticeBatchItemRepo
	Components NoticeComponentRepo
	IDMappings IDMappingRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		Batches:    NewBatchUploadRepo(db, log),
		Notices:    NewServedNoticeRepo(db, log),
		Items:      NewNoticeBatchItemRepo(db, log),
		Components: NewNoticeComponentRepo(db, log),
		IDMappings: NewIDMappingRepo(db, log),
	}
}
