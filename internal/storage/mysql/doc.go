// Package mysql opens the pooled MySQL handle shared by the database
// satellite and the MySQL task store.
package mysql
