package storage

import (
	"context"
	"database/sql"
	"fmt"

	"vpo/internal/model"
)

// TracksRepo provides CRUD access to the tracks table. Tracks are always
// replaced wholesale for a File (see spec.md §4.D): introspection never
// patches individual tracks in place.
type TracksRepo struct {
	engine *Engine
}

// Tracks returns a repository bound to this engine.
func (e *Engine) Tracks() *TracksRepo { return &TracksRepo{engine: e} }

// ReplaceForFile deletes all existing tracks for fileID and inserts the
// given set, atomically.
func (r *TracksRepo) ReplaceForFile(ctx context.Context, fileID int64, tracks []model.Track) error {
	return r.engine.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE file_id = ?`, fileID); err != nil {
			return fmt.Errorf("delete existing tracks: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO tracks (file_id, track_index, type, codec, language, title,
				is_default, is_forced, channels, channel_layout, width, height,
				frame_rate, color_transfer, color_primaries, color_space, color_range, duration)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare track insert: %w", err)
		}
		defer stmt.Close()

		for _, t := range tracks {
			_, err := stmt.ExecContext(ctx, fileID, t.TrackIndex, string(t.Type), t.Codec,
				t.Language, t.Title, boolToInt(t.Default), boolToInt(t.Forced),
				t.Channels, t.ChannelLayout, t.Width, t.Height, t.FrameRate,
				t.ColorTransfer, t.ColorPrimaries, t.ColorSpace, t.ColorRange, t.Duration)
			if err != nil {
				return fmt.Errorf("insert track %d: %w", t.TrackIndex, err)
			}
		}
		return nil
	})
}

// GetByFileID reads the full TrackSet for a file using an ephemeral read
// connection, ordered by track_index.
func (r *TracksRepo) GetByFileID(ctx context.Context, fileID int64) (model.TrackSet, error) {
	conn, closer, err := r.engine.ReadConn(ctx)
	if err != nil {
		return model.TrackSet{}, err
	}
	defer closer()

	rows, err := conn.QueryContext(ctx, `
		SELECT id, file_id, track_index, type, codec, language, title, is_default,
			is_forced, channels, channel_layout, width, height, frame_rate,
			color_transfer, color_primaries, color_space, color_range, duration
		FROM tracks WHERE file_id = ? ORDER BY track_index ASC`, fileID)
	if err != nil {
		return model.TrackSet{}, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	ts := model.TrackSet{FileID: fileID}
	for rows.Next() {
		var t model.Track
		var typ string
		var isDefault, isForced int
		if err := rows.Scan(&t.ID, &t.FileID, &t.TrackIndex, &typ, &t.Codec, &t.Language,
			&t.Title, &isDefault, &isForced, &t.Channels, &t.ChannelLayout, &t.Width,
			&t.Height, &t.FrameRate, &t.ColorTransfer, &t.ColorPrimaries, &t.ColorSpace,
			&t.ColorRange, &t.Duration); err != nil {
			return model.TrackSet{}, fmt.Errorf("scan track row: %w", err)
		}
		t.Type = model.TrackType(typ)
		t.Default = isDefault != 0
		t.Forced = isForced != 0
		ts.Tracks = append(ts.Tracks, t)
	}
	return ts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
