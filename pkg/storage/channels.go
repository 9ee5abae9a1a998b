package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bugtriage/pkg/repo"
)

// SaveChannelConfig creates or replaces the repository settings of a channel.
func (s *Store) SaveChannelConfig(ctx context.Context, cfg repo.ChannelConfig) error {
	channelID := strings.TrimSpace(cfg.ChannelID)
	if channelID == "" {
		return errors.New("channel id is required")
	}
	if strings.TrimSpace(cfg.Project) == "" {
		return errors.New("project name is required")
	}

	repos, err := json.Marshal(cfg.Repositories)
	if err != nil {
		return fmt.Errorf("encode repositories: %w", err)
	}

	channelName := cfg.ChannelName
	if channelName == "" {
		channelName = channelID
	}

	now := toUnix(s.now())
	_, err = s.db.ExecContext(ctx, `INSERT INTO channel_repos (channel_id, channel_name, project_name, repos, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			channel_name = excluded.channel_name,
			project_name = excluded.project_name,
			repos = excluded.repos,
			updated_at = excluded.updated_at`,
		channelID, channelName, cfg.Project, string(repos), now, now)
	if err != nil {
		return fmt.Errorf("save channel config %s: %w", channelID, err)
	}
	return nil
}

func (s *Store) GetChannelConfig(ctx context.Context, channelID string) (repo.ChannelConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT channel_id, channel_name, project_name, repos, created_at, updated_at FROM channel_repos WHERE channel_id = ?`, strings.TrimSpace(channelID))
	cfg, err := scanChannelConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ChannelConfig{}, fmt.Errorf("%w: %s", ErrChannelConfigNotFound, channelID)
	}
	if err != nil {
		return repo.ChannelConfig{}, fmt.Errorf("get channel config %s: %w", channelID, err)
	}
	return cfg, nil
}

// ListChannelConfigs returns every configured channel ordered by project.
func (s *Store) ListChannelConfigs(ctx context.Context) ([]repo.ChannelConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel_id, channel_name, project_name, repos, created_at, updated_at FROM channel_repos ORDER BY project_name, channel_id`)
	if err != nil {
		return nil, fmt.Errorf("list channel configs: %w", err)
	}
	defer rows.Close()

	var configs []repo.ChannelConfig
	for rows.Next() {
		cfg, err := scanChannelConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel config: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel configs: %w", err)
	}
	return configs, nil
}

func (s *Store) DeleteChannelConfig(ctx context.Context, channelID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM channel_repos WHERE channel_id = ?`, strings.TrimSpace(channelID))
	if err != nil {
		return fmt.Errorf("delete channel config %s: %w", channelID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrChannelConfigNotFound, channelID)
	}
	return nil
}

func scanChannelConfig(row scanner) (repo.ChannelConfig, error) {
	var (
		cfg                  repo.ChannelConfig
		repos                string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&cfg.ChannelID, &cfg.ChannelName, &cfg.Project, &repos, &createdAt, &updatedAt); err != nil {
		return repo.ChannelConfig{}, err
	}
	if err := json.Unmarshal([]byte(repos), &cfg.Repositories); err != nil {
		return repo.ChannelConfig{}, fmt.Errorf("decode repositories: %w", err)
	}
	cfg.CreatedAt = fromUnix(createdAt)
	cfg.UpdatedAt = fromUnix(updatedAt)
	return cfg, nil
}
