package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/bkrepo/registry/registry/datastore/metrics"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/opencontainers/go-digest"
)

const nodeColumns = `project_id,
			repo_name,
			full_path,
			name,
			size,
			sha256,
			metadata,
			created_at,
			updated_at`

// nodeStore is the concrete node tree on the nodes table.
type nodeStore struct {
	db *DB
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*storagedriver.Node, error) {
	n := new(storagedriver.Node)
	var sha sql.NullString
	var md []byte

	if err := row.Scan(&n.ProjectID, &n.RepoName, &n.FullPath, &n.Name, &n.Size, &sha, &md, &n.CreatedAt, &n.UpdatedAt); err != nil {
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		return nil, storagedriver.ErrNodeNotFound
	}
	n.Sha256 = sha.String

	n.Metadata = make(map[string]string)
	if len(md) > 0 {
		if err := json.Unmarshal(md, &n.Metadata); err != nil {
			return nil, fmt.Errorf("parsing node metadata: %w", err)
		}
	}

	return n, nil
}

func marshalMetadata(md map[string]string) ([]byte, error) {
	if md == nil {
		md = map[string]string{}
	}
	return json.Marshal(md)
}

// dirPrefix returns the path prefix shared by the descendants of p.
func dirPrefix(p string) string {
	if p == "/" {
		return p
	}
	return p + "/"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// descendantsPattern returns a LIKE pattern matching every path below p.
func descendantsPattern(p string) string {
	return likeEscaper.Replace(dirPrefix(p)) + "%"
}

func (s *nodeStore) find(ctx context.Context, q Queryer, key storagedriver.NodeKey) (*storagedriver.Node, error) {
	defer metrics.InstrumentQuery("node_find")()
	query := `SELECT ` + nodeColumns + `
		FROM
			nodes
		WHERE
			project_id = $1
			AND repo_name = $2
			AND full_path = $3`

	return scanNode(q.QueryRowContext(ctx, query, key.ProjectID, key.RepoName, key.FullPath))
}

func (s *nodeStore) hasDescendants(ctx context.Context, key storagedriver.NodeKey) (bool, error) {
	defer metrics.InstrumentQuery("node_has_descendants")()
	q := `SELECT EXISTS (
			SELECT 1 FROM nodes
			WHERE project_id = $1
				AND repo_name = $2
				AND full_path LIKE $3 ESCAPE '\')`

	var exists bool
	if err := s.db.QueryRowContext(ctx, q, key.ProjectID, key.RepoName, descendantsPattern(key.FullPath)).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking node descendants: %w", err)
	}
	return exists, nil
}

func (s *nodeStore) Detail(ctx context.Context, key storagedriver.NodeKey) (*storagedriver.Node, error) {
	n, err := s.find(ctx, s.db, key)
	if err != storagedriver.ErrNodeNotFound {
		return n, err
	}

	folder, err := s.hasDescendants(ctx, key)
	if err != nil {
		return nil, err
	}
	if !folder {
		return nil, storagedriver.ErrNodeNotFound
	}
	return &storagedriver.Node{NodeKey: key, Name: path.Base(key.FullPath), Folder: true}, nil
}

func (s *nodeStore) Exists(ctx context.Context, key storagedriver.NodeKey) (bool, error) {
	_, err := s.find(ctx, s.db, key)
	switch err {
	case nil:
		return true, nil
	case storagedriver.ErrNodeNotFound:
		return s.hasDescendants(ctx, key)
	default:
		return false, err
	}
}

// inTx runs f in a transaction, committing when it returns nil.
func (s *nodeStore) inTx(ctx context.Context, f func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("creating transaction: %w", err)
	}
	defer tx.Rollback()

	if err := f(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *nodeStore) Create(ctx context.Context, req storagedriver.CreateNodeRequest) (*storagedriver.Node, error) {
	defer metrics.InstrumentQuery("node_create")()

	md, err := marshalMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}

	q := `INSERT INTO nodes (project_id, repo_name, full_path, name, size, sha256, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if req.Overwrite {
		q += `
		ON CONFLICT (project_id, repo_name, full_path)
			DO UPDATE SET
				name = EXCLUDED.name,
				size = EXCLUDED.size,
				sha256 = EXCLUDED.sha256,
				metadata = EXCLUDED.metadata,
				updated_at = now()`
	}
	q += `
		RETURNING ` + nodeColumns

	var n *storagedriver.Node
	err = s.inTx(ctx, func(tx *Tx) error {
		if err := (&repositoryStore{db: tx}).ensure(ctx, req.ProjectID, req.RepoName); err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, q, req.ProjectID, req.RepoName, req.FullPath, path.Base(req.FullPath), req.Size, req.Sha256, string(md))
		var err error
		if n, err = scanNode(row); err != nil {
			if isUniqueViolation(err) {
				return storagedriver.ErrNodeExists
			}
			return fmt.Errorf("creating node: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *nodeStore) Copy(ctx context.Context, src, dst storagedriver.NodeKey) error {
	defer metrics.InstrumentQuery("node_copy")()
	q := `INSERT INTO nodes (project_id, repo_name, full_path, name, size, sha256, metadata)
		SELECT
			$4, $5, $6, $7, size, sha256, metadata
		FROM
			nodes
		WHERE
			project_id = $1
			AND repo_name = $2
			AND full_path = $3
		ON CONFLICT (project_id, repo_name, full_path)
			DO UPDATE SET
				name = EXCLUDED.name,
				size = EXCLUDED.size,
				sha256 = EXCLUDED.sha256,
				metadata = EXCLUDED.metadata,
				created_at = now(),
				updated_at = now()`

	return s.inTx(ctx, func(tx *Tx) error {
		if err := (&repositoryStore{db: tx}).ensure(ctx, dst.ProjectID, dst.RepoName); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, q, src.ProjectID, src.RepoName, src.FullPath,
			dst.ProjectID, dst.RepoName, dst.FullPath, path.Base(dst.FullPath))
		if err != nil {
			return fmt.Errorf("copying node: %w", err)
		}
		return requireAffected(res)
	})
}

func (s *nodeStore) Rename(ctx context.Context, src, dst storagedriver.NodeKey) error {
	defer metrics.InstrumentQuery("node_rename")()
	del := `DELETE FROM nodes
		WHERE project_id = $1
			AND repo_name = $2
			AND full_path = $3`
	upd := `UPDATE nodes SET
			project_id = $4,
			repo_name = $5,
			full_path = $6,
			name = $7,
			updated_at = now()
		WHERE
			project_id = $1
			AND repo_name = $2
			AND full_path = $3`

	return s.inTx(ctx, func(tx *Tx) error {
		if src == dst {
			_, err := s.find(ctx, tx, src)
			return err
		}
		if err := (&repositoryStore{db: tx}).ensure(ctx, dst.ProjectID, dst.RepoName); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, del, dst.ProjectID, dst.RepoName, dst.FullPath); err != nil {
			return fmt.Errorf("replacing node: %w", err)
		}

		res, err := tx.ExecContext(ctx, upd, src.ProjectID, src.RepoName, src.FullPath,
			dst.ProjectID, dst.RepoName, dst.FullPath, path.Base(dst.FullPath))
		if err != nil {
			return fmt.Errorf("renaming node: %w", err)
		}
		return requireAffected(res)
	})
}

func (s *nodeStore) Delete(ctx context.Context, key storagedriver.NodeKey) error {
	defer metrics.InstrumentQuery("node_delete")()
	q := `DELETE FROM nodes
		WHERE project_id = $1
			AND repo_name = $2
			AND (full_path = $3
				OR full_path LIKE $4 ESCAPE '\')`

	res, err := s.db.ExecContext(ctx, q, key.ProjectID, key.RepoName, key.FullPath, descendantsPattern(key.FullPath))
	if err != nil {
		return fmt.Errorf("deleting node: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return storagedriver.ErrNodeNotFound
	}
	return nil
}

// buildQuery translates q into a SELECT over nodes. Paths are compared
// bytewise so that results sort the same way on every database collation.
func buildQuery(q storagedriver.Query) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.ProjectID != "" {
		conds = append(conds, "project_id = "+arg(q.ProjectID))
	}
	if q.RepoName != "" {
		conds = append(conds, "repo_name = "+arg(q.RepoName))
	}
	if q.PathPrefix != "" {
		conds = append(conds, "full_path LIKE "+arg(descendantsPattern(storagedriver.CleanPath(q.PathPrefix)))+` ESCAPE '\'`)
	}
	if q.Sha256 != "" {
		conds = append(conds, "sha256 = "+arg(q.Sha256))
	}
	if len(q.Names) > 0 {
		placeholders := make([]string, 0, len(q.Names))
		for _, name := range q.Names {
			placeholders = append(placeholders, arg(name))
		}
		conds = append(conds, "name IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := "SELECT " + nodeColumns + "\n\t\tFROM\n\t\t\tnodes"
	if len(conds) > 0 {
		query += "\n\t\tWHERE\n\t\t\t" + strings.Join(conds, "\n\t\t\tAND ")
	}
	query += "\n\t\tORDER BY\n\t\t\tproject_id COLLATE \"C\",\n\t\t\trepo_name COLLATE \"C\",\n\t\t\tfull_path COLLATE \"C\""
	if q.Limit > 0 {
		query += "\n\t\tLIMIT " + arg(q.Limit)
	}

	return query, args
}

func (s *nodeStore) Query(ctx context.Context, q storagedriver.Query) ([]storagedriver.Node, error) {
	defer metrics.InstrumentQuery("node_query")()

	query, args := buildQuery(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var nn []storagedriver.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nn = append(nn, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning nodes: %w", err)
	}

	return nn, nil
}

func (s *nodeStore) SaveMetadata(ctx context.Context, key storagedriver.NodeKey, md map[string]string) error {
	defer metrics.InstrumentQuery("node_save_metadata")()
	q := `UPDATE nodes SET
			metadata = metadata || $4::jsonb,
			updated_at = now()
		WHERE
			project_id = $1
			AND repo_name = $2
			AND full_path = $3`

	b, err := marshalMetadata(md)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, key.ProjectID, key.RepoName, key.FullPath, string(b))
	if err != nil {
		return fmt.Errorf("saving node metadata: %w", err)
	}
	return requireAffected(res)
}

func (s *nodeStore) QueryMetadata(ctx context.Context, key storagedriver.NodeKey) (map[string]string, error) {
	n, err := s.find(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	return n.Metadata, nil
}

func (s *nodeStore) FindBlobGlobally(ctx context.Context, dgst digest.Digest) ([]storagedriver.Location, error) {
	q := storagedriver.Query{}
	if dgst.Algorithm() == digest.SHA256 {
		q.Sha256 = dgst.Encoded()
	} else {
		q.Names = []string{dgst.Encoded()}
	}

	nn, err := s.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	locations := make([]storagedriver.Location, 0, len(nn))
	for _, n := range nn {
		locations = append(locations, storagedriver.Location{NodeKey: n.NodeKey, Sha256: n.Sha256, Size: n.Size})
	}
	return locations, nil
}
