package book

import "fmt"

// BasePath is the resource base path for books.
const BasePath = "/api/v1/books"

// Links builds the navigation references embedded in item responses. Clients
// should treat them as advisory; they point at the same conventional routes.
func Links(id int64) map[string]string {
	self := fmt.Sprintf("%s/%d", BasePath, id)
	return map[string]string{
		"self":       self,
		"update":     self,
		"delete":     self,
		"collection": BasePath,
	}
}

// CollectionLinks builds the navigation references for a page of books.
func CollectionLinks(p PageRequest, totalPages int) map[string]string {
	links := map[string]string{
		"self": fmt.Sprintf("%s?page=%d&size=%d", BasePath, p.Page, p.Size),
	}
	if p.Page > 0 {
		links["prev"] = fmt.Sprintf("%s?page=%d&size=%d", BasePath, p.Page-1, p.Size)
	}
	if p.Page+1 < totalPages {
		links["next"] = fmt.Sprintf("%s?page=%d&size=%d", BasePath, p.Page+1, p.Size)
	}
	return links
}
