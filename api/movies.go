package api

import (
	"net/http"
	"strconv"

	"github.com/Kellerman81/go_media_organizer/database"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/structure"
	gin "github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

func AddMoviesRoutes(routermovies *gin.RouterGroup) {
	routermovies.GET("", apiMoviesList)
	routermovies.GET("/:id", apiMoviesGet)
}

func AddLibraryRoutes(rg *gin.RouterGroup) {
	rg.GET("/directors", apiDirectorsList)
	rg.GET("/directors/:id", apiDirectorsGet)
	rg.GET("/duplicates", apiDuplicates)
	rg.GET("/albums", apiAlbumsList)
}

// pageQuery reads ?limit= and ?offset=.
func pageQuery(c *gin.Context) (database.Query, error) {
	var qu database.Query
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return qu, errors.Wrapf(logger.ErrInvalidInput, "limit %q", limit)
		}
		qu.Limit = uint64(n)
	}
	if offset := c.Query("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			return qu, errors.Wrapf(logger.ErrInvalidInput, "offset %q", offset)
		}
		qu.Offset = uint64(n)
	}
	return qu, nil
}

func idParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(logger.ErrInvalidInput, "id %q", c.Param("id"))
	}
	return id, nil
}

// @Summary List movies
// @Param title query string false "title contains"
// @Param year query int false "year"
// @Router /api/movies [get]
func apiMoviesList(c *gin.Context) {
	qu, err := pageQuery(c)
	if err != nil {
		abortError(c, err)
		return
	}
	var where []string
	if title := c.Query("title"); title != "" {
		where = append(where, "(title like ? or chinese_title like ? or original_title like ?)")
		like := "%" + title + "%"
		qu.WhereArgs = append(qu.WhereArgs, like, like, like)
	}
	if year := c.Query("year"); year != "" {
		n, err := strconv.Atoi(year)
		if err != nil {
			abortError(c, errors.Wrapf(logger.ErrInvalidInput, "year %q", year))
			return
		}
		where = append(where, "year = ?")
		qu.WhereArgs = append(qu.WhereArgs, n)
	}
	for idx := range where {
		if idx != 0 {
			qu.Where += " and "
		}
		qu.Where += where[idx]
	}
	movies, err := database.ListMovies(qu)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": movies, "rows": len(movies)})
}

// @Summary Get a movie with its directors and files
// @Router /api/movies/{id} [get]
func apiMoviesGet(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		abortError(c, err)
		return
	}
	movie, err := database.GetMovie(id)
	if err != nil {
		abortError(c, err)
		return
	}
	directors, err := database.GetMovieDirectors(id)
	if err != nil {
		abortError(c, err)
		return
	}
	files, err := database.GetMovieFiles(id)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": movie, "directors": directors, "files": files})
}

// @Summary List directors
// @Param name query string false "name contains"
// @Router /api/directors [get]
func apiDirectorsList(c *gin.Context) {
	qu, err := pageQuery(c)
	if err != nil {
		abortError(c, err)
		return
	}
	if name := c.Query("name"); name != "" {
		qu.Where = "name like ? or chinese_name like ?"
		qu.WhereArgs = []interface{}{"%" + name + "%", "%" + name + "%"}
	}
	directors, err := database.ListDirectors(qu)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": directors, "rows": len(directors)})
}

// @Summary Get a director with the movies
// @Router /api/directors/{id} [get]
func apiDirectorsGet(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		abortError(c, err)
		return
	}
	movies, err := database.GetDirectorMovies(id)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": movies, "rows": len(movies)})
}

// @Summary Report duplicate movie files
// @Description Only reports, nothing is moved
// @Router /api/duplicates [get]
func apiDuplicates(c *gin.Context) {
	reports, err := structure.FindDuplicates(c.Request.Context(), structure.DedupeOptions{Options: structure.DefaultOptions()})
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reports, "rows": len(reports)})
}

// @Summary List albums
// @Router /api/albums [get]
func apiAlbumsList(c *gin.Context) {
	qu, err := pageQuery(c)
	if err != nil {
		abortError(c, err)
		return
	}
	if artist := c.Query("artist"); artist != "" {
		qu.Where = "artist = ?"
		qu.WhereArgs = []interface{}{artist}
	}
	albums, err := database.ListAlbums(qu)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": albums, "rows": len(albums)})
}
