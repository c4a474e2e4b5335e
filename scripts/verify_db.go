package main

import (
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/behflow/behflow/internal/storage"
)

func main() {
	// Connect to the database
	db, err := gorm.Open(sqlite.Open("behflow.db"), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	fmt.Println("--- Verifying Behflow Database ---")

	var userCount int64
	if !db.Migrator().HasTable(&storage.User{}) {
		fmt.Println("Table 'users' does not exist yet.")
	} else {
		db.Model(&storage.User{}).Count(&userCount)
		fmt.Printf("Total Users: %d\n", userCount)
	}

	fmt.Println("\n------------------------------------")

	var taskCount int64
	if !db.Migrator().HasTable(&storage.Task{}) {
		fmt.Println("Table 'tasks' does not exist yet.")
	} else {
		db.Model(&storage.Task{}).Count(&taskCount)
		fmt.Printf("Total Tasks: %d\n", taskCount)

		if taskCount > 0 {
			var tasks []storage.Task
			db.Order("created_at desc").Limit(5).Find(&tasks)
			fmt.Println("Latest 5 Tasks (Local Time):")
			for _, t := range tasks {
				due := "-"
				if t.DueDate != nil {
					due = t.DueDate.Local().Format("2006-01-02 15:04:05")
				}
				fmt.Printf("  [%s] %s priority:%s status:%s due:%s\n",
					t.CreatedAt.Local().Format("2006-01-02 15:04:05"), t.Name, t.Priority, t.Status, due)
			}
		}
	}

	fmt.Println("\n------------------------------------")

	var auditCount int64
	if !db.Migrator().HasTable(&storage.AuditRecord{}) {
		fmt.Println("Table 'audit_records' does not exist yet.")
	} else {
		db.Model(&storage.AuditRecord{}).Count(&auditCount)
		fmt.Printf("Total Audit Records: %d\n", auditCount)

		if auditCount > 0 {
			var records []storage.AuditRecord
			db.Order("started_at desc").Limit(5).Find(&records)
			fmt.Println("Latest 5 Audit Records (Local Time):")
			for _, r := range records {
				fmt.Printf("  [%s] %s status:%s trace:%s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Action, r.Status, r.TraceID)
			}
		}
	}

	fmt.Println("\nVerification complete.")
}
