package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Intra CMS API",
        "description": "Access control and revision history engine for intranet content",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and token introspection"},
        {"name": "Content", "description": "Content items, access levels and lifecycle"},
        {"name": "Revisions", "description": "Per-item revision history"},
        {"name": "Groups", "description": "Group membership and subgroup administration"},
        {"name": "Site", "description": "Per-tenant site settings"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/api/v1/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "responses": {
                    "200": {"description": "Access token issued"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/api/v1/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user info",
                "responses": {
                    "200": {"description": "Authenticated user"},
                    "401": {"description": "Missing or invalid token"}
                }
            }
        },
        "/api/v1/contents": {
            "get": {
                "tags": ["Content"],
                "summary": "List readable content items",
                "responses": {
                    "200": {"description": "Items the caller may read"}
                }
            },
            "post": {
                "tags": ["Content"],
                "summary": "Create a content item",
                "responses": {
                    "201": {"description": "Created"},
                    "401": {"description": "Authentication required"}
                }
            }
        },
        "/api/v1/contents/{id}": {
            "get": {
                "tags": ["Content"],
                "summary": "Get a content item",
                "responses": {
                    "200": {"description": "Item"},
                    "404": {"description": "Not found or not readable"}
                }
            },
            "put": {
                "tags": ["Content"],
                "summary": "Update a content item",
                "responses": {
                    "200": {"description": "Updated item with recorded revision"},
                    "403": {"description": "Write access denied"}
                }
            },
            "delete": {
                "tags": ["Content"],
                "summary": "Soft-delete a content item",
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/api/v1/contents/{id}/access": {
            "put": {
                "tags": ["Content"],
                "summary": "Apply access-level selectors",
                "responses": {
                    "200": {"description": "Updated item"},
                    "422": {"description": "Selector not valid in this context"}
                }
            }
        },
        "/api/v1/contents/{id}/access-ids": {
            "get": {
                "tags": ["Content"],
                "summary": "List selectable access levels",
                "responses": {
                    "200": {"description": "Selectable options in presentation order"}
                }
            }
        },
        "/api/v1/contents/{id}/purge": {
            "delete": {
                "tags": ["Content"],
                "summary": "Permanently remove a deleted item and its history",
                "responses": {
                    "204": {"description": "Purged"},
                    "403": {"description": "Site admin required"}
                }
            }
        },
        "/api/v1/contents/{id}/revisions": {
            "get": {
                "tags": ["Revisions"],
                "summary": "List revisions for a content item",
                "responses": {
                    "200": {"description": "Revisions newest first"},
                    "404": {"description": "Not found or not readable"}
                }
            }
        },
        "/api/v1/contents/{id}/revisions/export": {
            "get": {
                "tags": ["Revisions"],
                "summary": "Export revision history as CSV or PDF",
                "responses": {
                    "200": {"description": "Export payload"}
                }
            }
        },
        "/api/v1/groups/{id}": {
            "get": {
                "tags": ["Groups"],
                "summary": "Get a group",
                "responses": {
                    "200": {"description": "Group"}
                }
            }
        },
        "/api/v1/groups/{id}/members": {
            "put": {
                "tags": ["Groups"],
                "summary": "Set a user's role within a group",
                "responses": {
                    "200": {"description": "Membership"},
                    "403": {"description": "Group admin required"}
                }
            }
        },
        "/api/v1/groups/{id}/subgroups": {
            "get": {
                "tags": ["Groups"],
                "summary": "List a group's subgroups",
                "responses": {
                    "200": {"description": "Subgroups in creation order"}
                }
            },
            "post": {
                "tags": ["Groups"],
                "summary": "Create a subgroup",
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/api/v1/subgroups/{id}": {
            "delete": {
                "tags": ["Groups"],
                "summary": "Delete a subgroup",
                "responses": {
                    "204": {"description": "Deleted"},
                    "403": {"description": "Group admin required"}
                }
            }
        },
        "/api/v1/subgroups/{id}/members": {
            "post": {
                "tags": ["Groups"],
                "summary": "Add a member to a subgroup",
                "responses": {
                    "204": {"description": "Added"}
                }
            },
            "delete": {
                "tags": ["Groups"],
                "summary": "Remove a member from a subgroup",
                "responses": {
                    "204": {"description": "Removed"}
                }
            }
        },
        "/api/v1/site": {
            "get": {
                "tags": ["Site"],
                "summary": "Get the current tenant's site settings",
                "responses": {
                    "200": {"description": "Settings"}
                }
            },
            "put": {
                "tags": ["Site"],
                "summary": "Update the current tenant's site settings",
                "responses": {
                    "200": {"description": "Updated settings"},
                    "403": {"description": "Site admin required"}
                }
            }
        }
    },
    "definitions": {
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "Envelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
