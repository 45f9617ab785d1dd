package model

// Class 班级表 — 对应 classes（由排课模块维护，本模块只读）
type Class struct {
	ClassID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"class_id"`
	Name    string `gorm:"type:varchar(200);not null"                     json:"name"`
	Status  string `gorm:"type:varchar(20);not null;default:'ACTIVE'"     json:"status"` // ACTIVE | INACTIVE
	BaseModel
}

// TableName 指定表名
func (Class) TableName() string { return "classes" }

// Student 学员表 — 对应 students
type Student struct {
	StudentID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"student_id"`
	FullName  string `gorm:"type:varchar(200);not null"                     json:"full_name"`
	Status    string `gorm:"type:varchar(20);not null;default:'ACTIVE'"     json:"status"` // ACTIVE | PAUSED | QUIT
	BaseModel
}

// TableName 指定表名
func (Student) TableName() string { return "students" }

// 报名状态
const (
	EnrollmentStatusActive    = "ACTIVE"
	EnrollmentStatusCompleted = "COMPLETED"
	EnrollmentStatusDropped   = "DROPPED"
	EnrollmentStatusPaused    = "PAUSED"
)

// Enrollment 报名表 — 对应 enrollments
type Enrollment struct {
	EnrollmentID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"enrollment_id"`
	ClassID      string `gorm:"type:uuid;not null"                             json:"class_id"`
	StudentID    string `gorm:"type:uuid;not null"                             json:"student_id"`
	Status       string `gorm:"type:varchar(20);not null;default:'ACTIVE'"     json:"status"`
	BaseModel

	// 关联
	Student *Student `gorm:"foreignKey:StudentID;references:StudentID" json:"student,omitempty"`
}

// TableName 指定表名
func (Enrollment) TableName() string { return "enrollments" }
