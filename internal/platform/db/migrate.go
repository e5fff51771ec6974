package db

import (
	"database/sql"
	"fmt"
	"time"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// スキーマ定義専用の行型。クエリは各 Store の素の SQL で行う。

type classTable struct {
	ID             string    `gorm:"primaryKey;size:26"`
	Name           string    `gorm:"size:100;not null;uniqueIndex:uq_classes_name"`
	TeacherName    *string   `gorm:"size:100"`
	TeacherNIP     *string   `gorm:"column:teacher_nip;size:32"`
	HeadmasterName *string   `gorm:"size:100"`
	HeadmasterNIP  *string   `gorm:"column:headmaster_nip;size:32"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (classTable) TableName() string { return "classes" }

type studentTable struct {
	ID        string    `gorm:"primaryKey;size:26"`
	Name      string    `gorm:"size:100;not null;index:idx_students_name"`
	NIS       string    `gorm:"column:nis;size:32;not null;uniqueIndex:uq_students_nis"`
	ClassName string    `gorm:"size:100;not null;index:idx_students_class"`
	Status    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
}

func (studentTable) TableName() string { return "students" }

type attendanceTable struct {
	ID        string       `gorm:"primaryKey;size:26"`
	StudentID string       `gorm:"size:26;not null;uniqueIndex:uq_attendance_student_date,priority:1"`
	Date      string       `gorm:"type:date;not null;uniqueIndex:uq_attendance_student_date,priority:2;index:idx_attendance_date"`
	Status    string       `gorm:"size:10;not null"`
	Note      *string      `gorm:"size:255"`
	CreatedAt time.Time    `gorm:"not null"`
	Student   studentTable `gorm:"foreignKey:StudentID;references:ID;constraint:OnDelete:CASCADE"`
}

func (attendanceTable) TableName() string { return "attendance" }

type accountTable struct {
	ID           string    `gorm:"primaryKey;size:64"`
	PasswordHash string    `gorm:"size:255;not null"`
	Role         string    `gorm:"size:16;not null"`
	IsDisabled   bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (accountTable) TableName() string { return "auth_accounts" }

// Migrate は既存の接続の上で gorm の AutoMigrate を流す。
func Migrate(conn *sql.DB) error {
	gdb, err := gorm.Open(gormmysql.New(gormmysql.Config{Conn: conn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open gorm: %w", err)
	}
	if err := gdb.AutoMigrate(&classTable{}, &studentTable{}, &attendanceTable{}, &accountTable{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
