package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/bookwise/circulation-service/circulation/internal/errs"
	"github.com/bookwise/circulation-service/circulation/internal/model"
)

const bookColumns = `id, isbn, title, author, genre, publication_year, description`

func (r *repository) CreateBook(ctx context.Context, book model.Book, copies int) (model.Book, error) {
	var created model.Book
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		const q = `insert into books (isbn, title, author, genre, publication_year, description)
		values ($1, $2, $3, $4, $5, $6)
		returning ` + bookColumns
		if err := tx.Get(&created, q, book.ISBN, book.Title, book.Author, book.Genre, book.Year, book.Description); err != nil {
			return err
		}
		for i := 0; i < copies; i++ {
			if _, err := tx.Exec(`insert into copies (book_id, status) values ($1, 'available')`, created.ID); err != nil {
				return err
			}
		}
		return nil
	})
	return created, err
}

func (r *repository) UpdateBook(ctx context.Context, bookID int, upd model.UpdateBookRequest) (model.Book, error) {
	q := qb.Update(booksTableName).
		Where(sq.Eq{"id": bookID}).
		Suffix("returning " + bookColumns)

	changed := false
	set := func(column string, v interface{}) {
		q = q.Set(column, v)
		changed = true
	}
	if upd.ISBN != nil {
		set("isbn", *upd.ISBN)
	}
	if upd.Title != nil {
		set("title", *upd.Title)
	}
	if upd.Author != nil {
		set("author", *upd.Author)
	}
	if upd.Genre != nil {
		set("genre", *upd.Genre)
	}
	if upd.Year != nil {
		set("publication_year", *upd.Year)
	}
	if upd.Description != nil {
		set("description", *upd.Description)
	}
	if !changed {
		return r.getBook(ctx, bookID)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var b model.Book
	if err := r.db.GetContext(ctx, &b, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return b, nil
}

func (r *repository) CreateCopy(ctx context.Context, bookID int) (model.Copy, error) {
	const q = `insert into copies (book_id, status) values ($1, 'available')
	returning id, book_id, status`
	var c model.Copy
	if err := r.db.GetContext(ctx, &c, q, bookID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return model.Copy{}, errs.ErrNotFound
		}
		return model.Copy{}, err
	}
	return c, nil
}

func (r *repository) getBook(ctx context.Context, bookID int) (model.Book, error) {
	var b model.Book
	if err := r.db.GetContext(ctx, &b, `select `+bookColumns+` from books where id = $1`, bookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return b, nil
}
