package models

import (
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"SpotFactory-server/config"

	_ "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *sql.DB
var GormDB *gorm.DB

func InitDB() {
	if config.AppConfig == nil {
		log.Fatal("config.AppConfig is nil, call config.InitConfig first")
	}
	dsn := config.AppConfig.MySQL.DSN
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	DB = db
	GormDB, err = gorm.Open(mysql.New(mysql.Config{
		Conn: DB,
	}), &gorm.Config{})
	if err != nil {
		log.Fatalf("GORM init failed: %v", err)
	}

	log.Println("database connected (native SQL + GORM)")

	// Bootstrap schema from doc/sql/SpotFactory.sql.
	b, err := os.ReadFile("doc/sql/SpotFactory.sql")
	if err != nil {
		log.Printf("failed to read schema file (skipping bootstrap): %v", err)
		return
	}
	sqls := strings.Split(string(b), ";")
	for _, s := range sqls {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := DB.Exec(s); err != nil {
			log.Printf("schema statement failed: %v ; sql: %s", err, s)
		}
	}
}

// Project CRUD
func CreateProject(p *Project) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	brief, _ := json.Marshal(p.Brief)
	var analysisParam interface{}
	if p.ImageAnalysis != nil {
		analysisParam, _ = json.Marshal(p.ImageAnalysis)
	}

	_, err := DB.Exec(
		`INSERT INTO project (id, name, status, duration_target, scene_count, brief, image_analysis, failed_scene, error, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Status, p.DurationTarget, p.SceneCount, brief, analysisParam, p.FailedScene, p.Error, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func GetProjectByID(id string) (Project, error) {
	var p Project
	row := DB.QueryRow(`SELECT id, name, status, duration_target, scene_count, brief, image_analysis, final_video, failed_scene, error, created_at, updated_at FROM project WHERE id = ?`, id)

	var briefBytes, analysisBytes, finalBytes []byte
	var errNull sql.NullString
	var createdAt, updatedAt time.Time
	if err := row.Scan(&p.ID, &p.Name, &p.Status, &p.DurationTarget, &p.SceneCount, &briefBytes, &analysisBytes, &finalBytes, &p.FailedScene, &errNull, &createdAt, &updatedAt); err != nil {
		return p, err
	}
	_ = json.Unmarshal(briefBytes, &p.Brief)
	if len(analysisBytes) > 0 {
		p.ImageAnalysis = &FrameAnalysis{}
		_ = json.Unmarshal(analysisBytes, p.ImageAnalysis)
	}
	if len(finalBytes) > 0 {
		p.FinalVideo = &FinalVideo{}
		_ = json.Unmarshal(finalBytes, p.FinalVideo)
	}
	if errNull.Valid {
		p.Error = errNull.String
	}
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt
	return p, nil
}

func DeleteProjectByID(id string) error {
	if _, err := DB.Exec(`DELETE FROM scene WHERE project_id = ?`, id); err != nil {
		return err
	}
	_, err := DB.Exec(`DELETE FROM project WHERE id = ?`, id)
	return err
}

// Scene queries (raw SQL, used by the API read path)
func GetScenesByProjectID(projectID string) ([]Scene, error) {
	rows, err := DB.Query(`SELECT id, project_id, ordinal, name, duration, prompt, dialogue, emotion, camera_movement, lighting, status, retry_count, error, clip, analysis, created_at, updated_at FROM scene WHERE project_id = ? ORDER BY ordinal ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Scene
	for rows.Next() {
		var s Scene
		var clipBytes, analysisBytes []byte
		var dialogueNull, errNull sql.NullString
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&s.ID, &s.ProjectId, &s.Ordinal, &s.Name, &s.Duration, &s.Prompt, &dialogueNull, &s.Emotion, &s.CameraMovement, &s.Lighting, &s.Status, &s.RetryCount, &errNull, &clipBytes, &analysisBytes, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if dialogueNull.Valid {
			s.Dialogue = dialogueNull.String
		}
		if errNull.Valid {
			s.Error = errNull.String
		}
		if len(clipBytes) > 0 {
			s.Clip = &Clip{}
			_ = json.Unmarshal(clipBytes, s.Clip)
		}
		if len(analysisBytes) > 0 {
			s.Analysis = &FrameAnalysis{}
			_ = json.Unmarshal(analysisBytes, s.Analysis)
		}
		s.CreatedAt = createdAt
		s.UpdatedAt = updatedAt
		res = append(res, s)
	}
	return res, rows.Err()
}
