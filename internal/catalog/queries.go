package catalog

const productFields = `
fragment ProductFields on Product {
  id
  title
  handle
  description
  images(first: 10) {
    edges { node { url altText width height } }
  }
  variants(first: 100) {
    edges {
      node {
        id
        title
        availableForSale
        price { amount currencyCode }
        compareAtPrice { amount currencyCode }
        selectedOptions { name value }
      }
    }
  }
  options { name values }
}
`

const productsQuery = `
query Products($first: Int!, $query: String) {
  products(first: $first, query: $query) {
    edges { node { ...ProductFields } }
  }
}
` + productFields

const productByHandleQuery = `
query ProductByHandle($handle: String!) {
  product(handle: $handle) { ...ProductFields }
}
` + productFields

const cartCreateMutation = `
mutation CartCreate($input: CartInput!) {
  cartCreate(input: $input) {
    cart {
      id
      checkoutUrl
      cost { totalAmount { amount currencyCode } }
    }
    userErrors { field message }
  }
}
`

type imageNode struct {
	URL     string `json:"url"`
	AltText string `json:"altText"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

type variantNode struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	AvailableForSale bool             `json:"availableForSale"`
	Price            Money            `json:"price"`
	CompareAtPrice   *Money           `json:"compareAtPrice"`
	SelectedOptions  []SelectedOption `json:"selectedOptions"`
}

type productNode struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Handle      string `json:"handle"`
	Description string `json:"description"`
	Images      struct {
		Edges []struct {
			Node imageNode `json:"node"`
		} `json:"edges"`
	} `json:"images"`
	Variants struct {
		Edges []struct {
			Node variantNode `json:"node"`
		} `json:"edges"`
	} `json:"variants"`
	Options []ProductOption `json:"options"`
}

func (n productNode) toProduct() Product {
	p := Product{
		ID:          n.ID,
		Title:       n.Title,
		Handle:      n.Handle,
		Description: n.Description,
		Images:      make([]Image, 0, len(n.Images.Edges)),
		Variants:    make([]Variant, 0, len(n.Variants.Edges)),
		Options:     n.Options,
	}
	for _, edge := range n.Images.Edges {
		img := edge.Node
		p.Images = append(p.Images, Image{URL: img.URL, AltText: img.AltText, Width: img.Width, Height: img.Height})
	}
	for _, edge := range n.Variants.Edges {
		v := edge.Node
		p.Variants = append(p.Variants, Variant{
			ID:               v.ID,
			Title:            v.Title,
			Price:            v.Price,
			CompareAtPrice:   v.CompareAtPrice,
			AvailableForSale: v.AvailableForSale,
			SelectedOptions:  v.SelectedOptions,
		})
	}
	return p
}

type productsData struct {
	Products struct {
		Edges []struct {
			Node productNode `json:"node"`
		} `json:"edges"`
	} `json:"products"`
}

type productData struct {
	Product *productNode `json:"product"`
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

type cartCreateData struct {
	CartCreate *struct {
		Cart *struct {
			ID          string `json:"id"`
			CheckoutURL string `json:"checkoutUrl"`
			Cost        struct {
				TotalAmount Money `json:"totalAmount"`
			} `json:"cost"`
		} `json:"cart"`
		UserErrors []userError `json:"userErrors"`
	} `json:"cartCreate"`
}
