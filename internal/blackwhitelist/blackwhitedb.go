package blackwhitelist

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Hara602/usbGuard/internal/model"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store 设备黑名单, 以 (vid, pid, serial) 为键
type Store struct {
	db               *sql.DB
	log              *zap.Logger
	blockEmptySerial bool
}

type Option func(*Store)

func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithBlockEmptySerial 无序列号 (或全 0 序列号) 的设备一律视为命中
func WithBlockEmptySerial(on bool) Option {
	return func(s *Store) { s.blockEmptySerial = on }
}

// Open 打开数据库并初始化表结构
func Open(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 联合主键 (vid, pid, serial) 防止重复
	schema := `
	CREATE TABLE IF NOT EXISTS blackwhitelist (
		vid TEXT,
		pid TEXT,
		serial TEXT,
		reason TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (vid, pid, serial)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	s := &Store{db: db, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// IsBlocked vid/pid 不区分大小写; 只有查无记录才算放行, 其它查询错误原样返回
func (s *Store) IsBlocked(vid, pid, serial string) (bool, string, error) {
	if s.blockEmptySerial && (serial == "" || serial == "000000000000") {
		return true, "Unknown or empty serial number", nil
	}

	// 查数据库黑名单
	var reason string
	err := s.db.QueryRow(
		"SELECT reason FROM blackwhitelist WHERE vid = ? AND pid = ? AND serial = ?",
		strings.ToUpper(vid), strings.ToUpper(pid), serial,
	).Scan(&reason)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, "", nil
	case err != nil:
		return false, "", fmt.Errorf("query blocklist: %w", err)
	}
	if reason == "" {
		reason = "Device is in blacklist"
	}
	return true, reason, nil
}

// AddBlockRule 添加黑名单规则, 已存在时忽略
func (s *Store) AddBlockRule(vid, pid, serial, reason string) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO blackwhitelist(vid,pid,serial,reason)VALUES (?, ?, ?, ?)",
		strings.ToUpper(vid), strings.ToUpper(pid), serial, reason,
	)
	if err != nil {
		return fmt.Errorf("add block rule: %w", err)
	}
	return nil
}

// Annotate 对命中黑名单的新设备追加一行说明; 查询失败同样输出一行
func (s *Store) Annotate(rec model.DeviceRecord) []string {
	vid, pid, serial, ok := model.ParsePNPID(rec.PNPID)
	if !ok {
		return nil
	}
	blocked, reason, err := s.IsBlocked(vid, pid, serial)
	if err != nil {
		s.log.Error("blocklist lookup failed", zap.String("pnp_id", rec.PNPID), zap.Error(err))
		return []string{fmt.Sprintf("  Blocklist lookup failed: %v", err)}
	}
	if blocked {
		s.log.Warn("blocked device attached", zap.String("pnp_id", rec.PNPID), zap.String("reason", reason))
		return []string{"  Blocked: " + reason}
	}
	return nil
}
